package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"storefront.org/internal/migrate"
	"storefront.org/internal/obs"
	"storefront.org/internal/store/pg"
)

func main() {
	var (
		dsn            = flag.String("dsn", os.Getenv("STOREFRONT_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory of SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory of SQL seeds")
		timeout        = flag.Duration("timeout", 30*time.Second, "Overall deadline")
	)
	flag.Parse()
	log := obs.Logger()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or STOREFRONT_PG_DSN")
	}
	if flag.NArg() == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, pg.DefaultPool())
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer store.Close()

	var migrations fs.FS = migrate.Migrations()
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	}
	var opts []migrate.Option
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seedsPath)))
	}
	mgr := migrate.NewManager(store.DB(), migrations, opts...)

	var names []string
	switch cmd := flag.Arg(0); cmd {
	case "up":
		names, err = mgr.Up(ctx)
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			return
		}
		if name != "" {
			names = []string{name}
		}
	case "seed":
		names, err = mgr.Seed(ctx)
	case "status":
		names, err = mgr.Status(ctx)
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", flag.Arg(0))
	}
	for _, name := range names {
		fmt.Println(name)
	}
}
