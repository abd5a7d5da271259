// Command generate-schema writes the JSON schema of the hdftp configuration
// file, for editor completion and CI validation of config.yaml.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/hdftp/pkg/config"
)

func main() {
	out := flag.String("o", "config.schema.json", "Output file, - for stdout")
	flag.Parse()

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "generate-schema: %v\n", err)
		os.Exit(1)
	}
}

func run(out string) error {
	// viper decodes through mapstructure, so its tags are the key names
	r := jsonschema.Reflector{
		FieldNameTag:   "mapstructure",
		DoNotReference: true,
	}

	schema := r.Reflect(&config.Config{})
	schema.ID = "https://github.com/marmos91/hdftp/config.schema.json"
	schema.Title = "HDFTP Configuration"
	schema.Description = "config.yaml of the hdftp FTP gateway"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	data = append(data, '\n')

	if out == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("Schema written to %s\n", out)
	return nil
}
