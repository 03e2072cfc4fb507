package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/muster/internal/config"
	"github.com/dyluth/muster/internal/printer"
	"github.com/dyluth/muster/internal/schemas"
	"github.com/dyluth/muster/pkg/redact"
	"github.com/dyluth/muster/pkg/uid"
	"github.com/spf13/cobra"
)

var (
	redactKind    string
	redactFile    string
	redactSchemas string
	redactStrict  bool
)

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Mask secret parameters in resource documents",
	Long: `Mask secret parameters in resource documents.

Reads a stream of JSON documents (one object, or JSONL) and writes each one
back with every secret parameter replaced by ********. Secrets are taken from
the action and runner definitions embedded in execution documents, and from
the schemas file otherwise.

When a document's schema cannot be found, its whole parameter map is masked.
With --strict the command stops with an error instead.

Examples:
  muster redact --kind execution --file execution.json
  cat liveactions.jsonl | muster redact --kind liveaction --schemas schemas.yml`,
	Args: cobra.NoArgs,
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringVarP(&redactKind, "kind", "k", "", "Resource kind of the documents (required)")
	redactCmd.Flags().StringVarP(&redactFile, "file", "f", "-", "Input file, - for stdin")
	redactCmd.Flags().StringVar(&redactSchemas, "schemas", "", "Schemas file (default $MUSTER_SCHEMAS or redaction.schemas)")
	redactCmd.Flags().BoolVar(&redactStrict, "strict", false, "Fail when a schema is unavailable instead of masking everything")
	redactCmd.MarkFlagRequired("kind")

	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	kind := uid.Kind(redactKind)
	if err := kind.Validate(); err != nil {
		return unknownKindError(kind)
	}

	provider, err := openSchemaProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	in := cmd.InOrStdin()
	if redactFile != "-" {
		f, err := os.Open(redactFile)
		if err != nil {
			return printer.Error("cannot open input", err.Error(), nil)
		}
		defer f.Close()
		in = f
	}

	engine := redact.NewEngine()
	dec := json.NewDecoder(in)
	dec.UseNumber()
	enc := json.NewEncoder(printer.Stdout)

	for n := 1; ; n++ {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return printer.Error("invalid input", fmt.Sprintf("Document %d: %v", n, err), []string{"Input must be JSON objects, one after another"})
		}

		schemaSet := redact.Resolve(ctx, provider, kind, doc)
		if redactStrict && schemaSet.Missing != nil {
			return printer.Error(
				"schema unavailable",
				fmt.Sprintf("Document %d: %v", n, schemaSet.Missing),
				[]string{"Add the schema to the schemas file, or drop --strict to mask every parameter"},
			)
		}

		out, err := engine.Redact(kind, doc, schemaSet)
		if redact.IsSchemaUnavailable(err) {
			printer.Warning("document %d: %v; masked every parameter\n", n, err)
		} else if err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to write document %d: %w", n, err)
		}
	}
}

// openSchemaProvider picks the schemas file from --schemas, MUSTER_SCHEMAS or
// muster.yml, in that order. With none configured every lookup misses.
func openSchemaProvider() (*schemas.CachedProvider, error) {
	env, err := config.LoadClientEnv()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(env.ConfigPath)
	if err != nil {
		return nil, printer.Error("invalid configuration", err.Error(), []string{fmt.Sprintf("Check %s", env.ConfigPath)})
	}

	path := redactSchemas
	if path == "" {
		path = env.SchemasPath
	}
	if path == "" {
		path = cfg.Redaction.Schemas
	}

	var file *schemas.FileProvider
	if path == "" {
		file, err = schemas.Parse(nil)
	} else {
		file, err = schemas.LoadFile(path)
	}
	if err != nil {
		return nil, printer.Error("cannot load schemas", err.Error(), []string{fmt.Sprintf("Check %s", path)})
	}

	return schemas.NewCachedProvider(file, cfg.Redaction.CacheTTL)
}
