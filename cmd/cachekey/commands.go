package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/acksell/cachekey"
	"github.com/sirupsen/logrus"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	backend    string
	dataDir    string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to cachekey.yaml (default: search upwards)")
	fs.StringVar(&c.backend, "backend", "", "Override the configured backend: badger, bolt or dynamodb")
	fs.StringVar(&c.dataDir, "db", "", "Override the configured data directory or file")
	fs.BoolVar(&c.verbose, "verbose", false, "Log debug output")
}

func runEntity(args []string) error {
	fs := flag.NewFlagSet("entity", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	typeName := fs.String("type", "", "Entity type name (required)")
	id := fs.String("id", "", "Entity id; omit for a new entity")
	attrs := fs.String("attrs", "", "Comma-separated timestamp attributes; omit for the identity-only key")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: cachekey entity --type <type> [--id <id>] [--attrs a,b] [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *typeName == "" {
		return fmt.Errorf("--type is required")
	}

	ctx := context.Background()
	app, err := setup(ctx, common, *id != "")
	if err != nil {
		return err
	}
	defer app.close()

	keys := cachekey.NewEntityKeyBuilder(app.formats)
	if *id == "" {
		fmt.Println(keys.KeyWithoutTimestamp(cachekey.NewRef(*typeName)))
		return nil
	}
	entity, err := app.store.Entity(ctx, *typeName, *id)
	if err != nil {
		return err
	}
	names := splitList(*attrs)
	if len(names) == 0 {
		fmt.Println(keys.KeyWithoutTimestamp(entity.CacheRef()))
		return nil
	}
	key, err := keys.KeyFromAttributes(ctx, entity, names...)
	if err != nil {
		return err
	}
	app.log.WithField("attributes", names).Debug("built entity key")
	fmt.Println(key)
	return nil
}

func runCollection(args []string) error {
	fs := flag.NewFlagSet("collection", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	typeName := fs.String("type", "", "Entity type name (required)")
	sources := fs.String("sources", "", "Comma-separated timestamp sources (default: updated_at)")
	countOnly := fs.Bool("count-only", false, "Print the key without a timestamp")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: cachekey collection --type <type> [--sources a,b] [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *typeName == "" {
		return fmt.Errorf("--type is required")
	}

	ctx := context.Background()
	app, err := setup(ctx, common, false)
	if err != nil {
		return err
	}
	defer app.close()

	keys := cachekey.NewCollectionKeyBuilder(app.store, app.formats)
	var key string
	if *countOnly {
		key, err = keys.KeyWithoutTimestamp(ctx, *typeName)
	} else {
		key, err = keys.Key(ctx, cachekey.CollectionRef{TypeName: *typeName, Sources: splitList(*sources)})
	}
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}

func runTouch(args []string) error {
	fs := flag.NewFlagSet("touch", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	typeName := fs.String("type", "", "Entity type name (required)")
	id := fs.String("id", "", "Entity id (required)")
	field := fs.String("field", "", "Timestamp attribute to refresh (default: updated_at)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: cachekey touch --type <type> --id <id> [--field f] [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *typeName == "" || *id == "" {
		return fmt.Errorf("--type and --id are required")
	}

	ctx := context.Background()
	app, err := setup(ctx, common, true)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.store.Touch(ctx, *typeName, *id, *field); err != nil {
		return err
	}
	app.log.WithFields(logrus.Fields{"type": *typeName, "id": *id}).Info("touched")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
