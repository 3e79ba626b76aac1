// Command migrate applies or rolls back the database schema.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"concursobot/internal/config"
	"concursobot/migrations"
)

func main() {
	cfg, err := config.LoadEnv()
	if err != nil {
		log.Fatal(err)
	}

	flag.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path to sqlite database")
	flag.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintln(w, "Usage: migrate [-db path] <command>")
		migrations.PrintUsage(w)
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := migrations.Exec(cfg.DatabasePath, flag.Arg(0)); err != nil {
		log.Fatal(err)
	}
}
