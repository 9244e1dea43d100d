package main

import (
	"flag"
	"fmt"
	"log"

	"taskdeck.io/internal/config"
	"taskdeck.io/internal/migrate"
)

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", "", "PostgreSQL DSN (defaults to DATABASE_URL)")
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|files]")
	}

	if flag.Arg(0) == "files" {
		names, err := migrate.Files()
		if err != nil {
			log.Fatalf("list migrations: %v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	if *dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		*dsn = cfg.DatabaseURL
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}

	mgr, err := migrate.NewManager(*dsn)
	if err != nil {
		log.Fatalf("open migrations: %v", err)
	}
	defer func() { _ = mgr.Close() }()

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up()
	case "down":
		err = mgr.Down()
	case "status":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = mgr.Status()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
		}
	default:
		err = fmt.Errorf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
