package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/server"
	"github.com/teemow/agentim/internal/tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate tool documentation",
		Long: `Generate markdown documentation for all tools the agent can use.
This command introspects the registered tools and outputs their documentation
in markdown format, ensuring the documentation is always accurate and in sync
with the actual tool implementations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.Context(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// docsRegistry registers every tool without credentials. Handlers are
// never invoked while generating documentation.
func docsRegistry(ctx context.Context) (*tools.Registry, error) {
	cfg, err := config.Default()
	if err != nil {
		return nil, err
	}
	manager := credential.NewManager(nil, nil, nil, credential.WithLogger(logging.Discard()))
	sc, err := server.NewServerContext(ctx, cfg, manager, server.WithLogger(logging.Discard()))
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = sc.Shutdown()
	}()

	registry := tools.NewRegistry()
	if err := registerAllTools(registry, sc); err != nil {
		return nil, err
	}
	return registry, nil
}

func runGenerateDocs(ctx context.Context, outputFile string) error {
	registry, err := docsRegistry(ctx)
	if err != nil {
		return err
	}

	markdown := generateToolsMarkdown(registry.Specs())

	// Write to output
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

func generateToolsMarkdown(specs []tools.ToolSpec) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Tools Reference\n\n")
	sb.WriteString("This document lists every tool the agent can use, both in `agentim run` and when serving MCP with `agentim serve`.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	// Group tools by category
	toolsByCategory := groupToolsByCategory(specs)

	// Table of contents
	sb.WriteString("## Table of Contents\n\n")
	categories := make([]string, 0, len(toolsByCategory))
	for category := range toolsByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		anchor := strings.ToLower(strings.ReplaceAll(category, " ", "-"))
		sb.WriteString(fmt.Sprintf("- [%s](#%s)\n", category, anchor))
	}
	sb.WriteString("\n")

	sb.WriteString("## Authorization\n\n")
	sb.WriteString("Google tools request only the OAuth scopes they need. Granted scopes accumulate in the stored credential:\n")
	sb.WriteString("consent is asked for again only when a tool needs a scope that was never granted.\n\n")

	// Generate documentation for each category
	for _, category := range categories {
		categoryTools := toolsByCategory[category]
		sort.Slice(categoryTools, func(i, j int) bool {
			return categoryTools[i].Name < categoryTools[j].Name
		})

		sb.WriteString(fmt.Sprintf("## %s\n\n", category))

		for _, spec := range categoryTools {
			sb.WriteString(generateToolMarkdown(spec))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func groupToolsByCategory(specs []tools.ToolSpec) map[string][]tools.ToolSpec {
	categories := make(map[string][]tools.ToolSpec)

	for _, spec := range specs {
		category := getCategoryFromToolName(spec.Name)
		categories[category] = append(categories[category], spec)
	}

	return categories
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	switch prefix {
	case "gmail":
		return "Gmail Tools"
	case "calendar":
		return "Google Calendar Tools"
	case "google":
		return "Google Search Tools"
	default:
		return "Other"
	}
}

func generateToolMarkdown(spec tools.ToolSpec) string {
	var sb strings.Builder
	tool := spec.Tool()

	// Tool name
	sb.WriteString(fmt.Sprintf("### %s\n\n", tool.Name))

	// Description
	if tool.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.Description))
	}

	if len(spec.Scopes) > 0 {
		sb.WriteString("**Scopes:** ")
		for i, scope := range spec.Scopes {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("`%s`", scope))
		}
		sb.WriteString("\n\n")
	}

	// Input schema
	if len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("**Arguments:**\n")
		writeArguments(&sb, tool)
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeArguments(sb *strings.Builder, tool mcp.Tool) {
	// Sort properties for consistent output
	propNames := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		propNames = append(propNames, name)
	}
	sort.Strings(propNames)

	for _, name := range propNames {
		propMap, ok := tool.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}

		requiredStr := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			requiredStr = "required"
		}

		sb.WriteString(fmt.Sprintf("- `%s` (%s, %s): ", name, getPropertyType(propMap), requiredStr))

		// Get description
		if desc, ok := propMap["description"].(string); ok {
			sb.WriteString(desc)
		} else {
			sb.WriteString(fmt.Sprintf("%s parameter", getPropertyType(propMap)))
		}

		sb.WriteString("\n")
	}
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
