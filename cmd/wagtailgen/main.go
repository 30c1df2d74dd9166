package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"wagtailgen/internal/pipeline"
	"wagtailgen/internal/prompt"
	"wagtailgen/internal/server"
)

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "wagtailgen: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var (
		global    globalOptions
		refine    bool
		imagePath string
		themeName string
	)

	cmd := &cobra.Command{
		Use:           "wagtailgen [description]",
		Short:         "wagtailgen writes Wagtail page models from a description or screenshot",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			description := prompt.Example()
			if len(args) == 1 {
				description = args[0]
			}
			if refine && strings.TrimSpace(imagePath) != "" {
				return errors.New("--refine and --image cannot be combined")
			}

			a, err := loadApp(global)
			if err != nil {
				return err
			}
			out := newOutput(cmd.OutOrStdout(), cmd.ErrOrStderr(), themeName)

			switch {
			case refine:
				return a.runRefine(cmd.Context(), out, description)
			case strings.TrimSpace(imagePath) != "":
				return a.runImage(cmd.Context(), out, imagePath)
			default:
				return a.runGenerate(cmd.Context(), out, description)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&global.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&global.envFile, "env-file", "", "Path to .env file (default ./.env)")
	cmd.PersistentFlags().StringVar(&global.provider, "provider", "", "Text provider: anthropic or openai")
	cmd.Flags().BoolVarP(&refine, "refine", "r", false, "Refine the description instead of generating code")
	cmd.Flags().StringVar(&imagePath, "image", "", "Generate from a screenshot file")
	cmd.Flags().StringVar(&themeName, "theme", "dark", "Output theme: dark or light")

	cmd.AddCommand(newServeCmd(&global))
	return cmd
}

func newServeCmd(global *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web UI and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*global)
			if err != nil {
				return err
			}
			if strings.TrimSpace(addr) != "" {
				a.cfg.Server.Addr = addr
			}
			srv, err := a.buildServer()
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8000)")
	return cmd
}

// output pairs stdout and stderr with themes bound to each writer's renderer.
type output struct {
	out, errOut     io.Writer
	theme, errTheme theme
}

func newOutput(out, errOut io.Writer, themeName string) output {
	return output{
		out:      out,
		errOut:   errOut,
		theme:    resolveTheme(lipgloss.NewRenderer(out), themeName),
		errTheme: resolveTheme(lipgloss.NewRenderer(errOut), themeName),
	}
}

func (a *app) runGenerate(ctx context.Context, out output, description string) error {
	text, err := buildTextBackend(a.cfg)
	if err != nil {
		return err
	}
	gen, err := a.gen.Generate(ctx, text, description)
	if err != nil {
		return err
	}
	printGeneration(out, gen)
	return nil
}

func (a *app) runImage(ctx context.Context, out output, path string) error {
	backend, err := buildImageBackend(a.cfg, a.logger)
	if err != nil {
		return err
	}
	store, err := buildImageStore(a.cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open screenshot: %w", err)
	}
	img, err := store.Save(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read screenshot %s: %w", path, err)
	}

	gen, err := a.gen.GenerateFromImage(ctx, backend, img)
	if err != nil {
		return err
	}
	printGeneration(out, gen)
	return nil
}

func (a *app) runRefine(ctx context.Context, out output, description string) error {
	text, err := buildTextBackend(a.cfg)
	if err != nil {
		return err
	}
	ref, err := a.gen.Refine(ctx, text, description)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out.out, "%s\n\n%s\n", renderLines(out.theme.refinement, ref.Description), out.theme.cost.Render(ref.Cost))
	return nil
}

func (a *app) buildServer() (*server.Server, error) {
	text, err := buildTextBackend(a.cfg)
	if err != nil {
		return nil, err
	}
	textSettings, err := a.cfg.TextSettings()
	if err != nil {
		return nil, err
	}
	backends := server.Backends{Provider: textSettings.Name, Model: textSettings.Model}

	store, err := buildImageStore(a.cfg)
	if err != nil {
		return nil, err
	}
	var image pipeline.ImageInvoker
	if backend, err := buildImageBackend(a.cfg, a.logger); err != nil {
		a.logger.Warn().Err(err).Msg("screenshot generation disabled")
	} else {
		image = backend
		backends.ImageModel = backend.Model()
	}

	gin.SetMode(gin.ReleaseMode)
	return server.New(server.Config{
		Addr:           a.cfg.Server.Addr,
		StaticDir:      a.cfg.Server.StaticDir,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		Generator:      a.gen,
		Text:           text,
		Image:          image,
		Images:         store,
		Backends:       backends,
		Logger:         a.logger,
	})
}

// printGeneration writes code, a blank line and the cost to stdout. A
// formatting fallback is noted on stderr so stdout stays pipeable.
func printGeneration(out output, gen pipeline.Generation) {
	if gen.Formatting.Degraded != nil {
		_, _ = fmt.Fprintln(out.errOut, out.errTheme.warning.Render("code left unformatted: "+gen.Formatting.Degraded.Error()))
	}
	_, _ = fmt.Fprintf(out.out, "%s\n\n%s\n", renderLines(out.theme.code, gen.Code), out.theme.cost.Render(gen.Cost))
}
