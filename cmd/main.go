package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"pharmpos/internal/config"
	httpapi "pharmpos/internal/http"

	_ "pharmpos/docs"
)

// @title Pharmacy POS API
// @version 1.0
// @description Catalog, stock ledger and billing for a single pharmacy counter.
// @BasePath /
func main() {
	if err := newCLI().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// errEphemeralCatalog rejects one-shot commands against a catalog that
// disappears when the process exits.
var errEphemeralCatalog = errors.New("catalog.driver is memory: import and search need catalog.driver sqlite (PHARMPOS_CATALOG_DRIVER=sqlite)")

func newCLI() *cli.App {
	return &cli.App{
		Name:  "pharmpos",
		Usage: "pharmacy point-of-sale: catalog, stock ledger and billing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				EnvVars: []string{"PHARMPOS_CONFIG"},
				Usage:   "path to the YAML config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:      "import",
				Usage:     "import medicines from a CSV file into the catalog",
				ArgsUsage: "<file.csv>",
				Action:    importFile,
			},
			{
				Name:      "search",
				Usage:     "fuzzy search the catalog",
				ArgsUsage: "<query>",
				Action:    searchCatalog,
			},
		},
		DefaultCommand: "serve",
	}
}

// loadPersistent loads the config for commands that must not run against the
// in-memory catalog.
func loadPersistent(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if cfg.Catalog.Driver != "sqlite" {
		return nil, errEphemeralCatalog
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	a, err := newApplication(c.Context, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpapi.NewServer(a.medicines, a.bills, httpapi.Options{
		Importer: a.importer,
		Pharmacy: a.pharmacy,
		Gatherer: a.registry,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Engine(),
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

func importFile(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: pharmpos import <file.csv>", 2)
	}
	cfg, err := loadPersistent(c)
	if err != nil {
		return err
	}
	a, err := newApplication(c.Context, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.importer.Import(c.Context, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "imported %d medicines\n", res.Imported)
	for _, e := range res.Errors {
		fmt.Fprintf(c.App.ErrWriter, "line %d: %s\n", e.Line, e.Err)
	}
	return nil
}

func searchCatalog(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("usage: pharmpos search <query>", 2)
	}
	cfg, err := loadPersistent(c)
	if err != nil {
		return err
	}
	a, err := newApplication(c.Context, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.medicines.Search(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGENERIC\tSTOCK\tSTATUS\tSCORE")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%.1f\n",
			r.Medicine.ID, r.Medicine.Name, r.Medicine.GenericName, r.Medicine.Quantity, r.StockStatus, r.Score)
	}
	return tw.Flush()
}
