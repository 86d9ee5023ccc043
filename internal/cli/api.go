package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peakplatform/peak-go/internal/api"
	"github.com/peakplatform/peak-go/internal/debug"
	"github.com/peakplatform/peak-go/internal/filter"
	"github.com/peakplatform/peak-go/internal/session"
	"github.com/peakplatform/peak-go/internal/template"
)

func newAPICmd() *cobra.Command {
	var (
		method         string
		fields         []string
		jsonBody       string
		templateFile   string
		templateParams []string
		params         []string
		artifactPath   string
		ignoreFiles    []string
		paged          bool
		itemsKey       string
		downloadPath   string
	)

	cmd := &cobra.Command{
		Use:   "api <endpoint>",
		Short: "Make a raw API request against the resolved stage address",
		Long: `Make a raw API request against the resolved stage address.

The endpoint is relative to https://<subdomain>.<stage>.peak.ai (the stage
segment is dropped on prod). Attach a directory with --artifact to switch
the request to a multipart artifact upload.`,
		Example: `  # GET request (default)
  peak api /api/v1/workflows

  # POST with body fields
  peak api /api/v1/workflows -X POST -f name=sync

  # Inline JSON body
  peak api /api/v1/workflows -X POST -d '{"name":"sync","steps":[]}'

  # Body rendered from a YAML template
  peak api /api/v1/workflows -X POST --template workflow.yaml.tmpl --template-param name=sync

  # Upload a packaged directory
  peak api /api/v1/images -X POST --artifact ./app -f version=1

  # Walk every page of a paginated listing
  peak api /api/v1/workflows --paged --items-key workflows

  # Stream a response body to disk
  peak api /api/v1/artifacts/42/download --download ./artifact.zip

  # Filter the response
  peak api /api/v1/workflows -q '.workflows[].name'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method = strings.ToUpper(method)
			switch method {
			case "GET", "POST", "PUT", "PATCH", "DELETE":
			default:
				return fmt.Errorf("invalid HTTP method %q: must be one of GET, POST, PUT, PATCH, DELETE", method)
			}
			if jsonBody != "" && len(fields) > 0 {
				return fmt.Errorf("cannot use both --body and --field")
			}
			if templateFile != "" && (jsonBody != "" || len(fields) > 0) {
				return fmt.Errorf("cannot use --template with --body or --field")
			}
			if paged && downloadPath != "" {
				return fmt.Errorf("cannot use both --paged and --download")
			}

			body, err := requestBody(fields, jsonBody)
			if err != nil {
				return err
			}
			if templateFile != "" {
				body, err = templateBody(templateFile, templateParams)
				if err != nil {
					return err
				}
			}
			queryParams, err := parseFields(params)
			if err != nil {
				return err
			}

			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.FlushTelemetry()

			req := session.Request{
				Endpoint:     args[0],
				Method:       method,
				Params:       queryParams,
				Body:         body,
				ArtifactPath: artifactPath,
				IgnoreFiles:  ignoreFiles,
			}
			if artifactPath != "" {
				req.ContentType = api.ContentTypeMultipart
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			// Dry-run with an artifact shows what the upload would
			// contain; the request itself is skipped downstream.
			if debug.IsDryRun(ctx) && artifactPath != "" {
				tree, err := s.Preview(req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(out, tree)
			}

			if downloadPath != "" {
				if err := s.DownloadRequest(ctx, req, downloadPath); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "saved to %s\n", downloadPath)
				return nil
			}

			if paged {
				var items []json.RawMessage
				for item, err := range s.Paged(ctx, req, itemsKey) {
					if err != nil {
						return err
					}
					items = append(items, item)
				}
				return printItems(cmd, items)
			}

			raw, err := s.Do(ctx, req)
			if err != nil {
				return err
			}
			return printResponse(cmd, raw)
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method (GET, POST, PUT, PATCH, DELETE)")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "Request body field as key=value")
	cmd.Flags().StringVarP(&jsonBody, "body", "d", "", "Inline JSON request body")
	cmd.Flags().StringVar(&templateFile, "template", "", "YAML template file rendered into the request body")
	cmd.Flags().StringArrayVar(&templateParams, "template-param", nil, "Template parameter as key=value")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Query parameter as key=value")
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "Directory to package and upload as the request artifact")
	cmd.Flags().StringArrayVar(&ignoreFiles, "ignore-file", nil, "Ignore file inside the artifact directory (default .dockerignore)")
	cmd.Flags().BoolVar(&paged, "paged", false, "Fetch every page and print the concatenated items")
	cmd.Flags().StringVar(&itemsKey, "items-key", "items", "Response field holding the page items")
	cmd.Flags().StringVar(&downloadPath, "download", "", "Stream the response body to this file")

	return cmd
}

// templateBody renders a YAML template file with the given key=value
// parameters into a request body map.
func templateBody(path string, pairs []string) (map[string]any, error) {
	params, err := parseFields(pairs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return template.RenderToMap(filepath.Base(path), string(data), params)
}

func requestBody(fields []string, jsonBody string) (map[string]any, error) {
	if jsonBody != "" {
		var body map[string]any
		if err := json.Unmarshal([]byte(jsonBody), &body); err != nil {
			return nil, fmt.Errorf("invalid --body: %w", err)
		}
		return body, nil
	}
	return parseFields(fields)
}

// printResponse renders a raw JSON payload, optionally shaped by the
// global --query expression. Dry-run responses are empty and print
// nothing.
func printResponse(cmd *cobra.Command, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	rendered, err := filter.ApplyRaw(raw, flags.Query)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(rendered))
	return nil
}

func printItems(cmd *cobra.Command, items []json.RawMessage) error {
	combined, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return printResponse(cmd, combined)
}
