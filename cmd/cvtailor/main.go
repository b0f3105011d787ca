package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"CVTailor/internal/app"
	"CVTailor/internal/cache"
	"CVTailor/internal/config"
	"CVTailor/internal/domain"
	"CVTailor/internal/logging"
)

// Globals are shared by every command.
type Globals struct {
	Config   string `short:"c" help:"YAML configuration file." type:"path" env:"CVTAILOR_CONFIG"`
	LogLevel string `name:"log-level" help:"Override the configured log level (debug|info|warn|error)."`
}

func (g *Globals) load() (config.Config, *slog.Logger) {
	if g.Config != "" {
		_ = os.Setenv("CVTAILOR_CONFIG", g.Config)
	}
	cfg := config.Load()
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	logger := logging.New(cfg.Logging.Level)
	slog.SetDefault(logger)
	return cfg, logger
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP API."`
	Process ProcessCmd `cmd:"" help:"Tailor a CV PDF to a job locally and write the resulting PDFs."`
	Compile CompileCmd `cmd:"" help:"Compile a LaTeX source with the configured compiler."`
	JobID   JobIDCmd   `cmd:"" name:"job-id" help:"Print the job identity of a JSON job spec."`
}

type ServeCmd struct{}

func (s *ServeCmd) Run(g *Globals) error {
	cfg, logger := g.load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Serve(ctx)
}

type ProcessCmd struct {
	File string `short:"f" required:"" type:"existingfile" help:"CV PDF to tailor."`
	Job  string `short:"j" type:"existingfile" help:"JSON job spec; defaults to the configured default job."`
	Out  string `short:"o" default:"out" type:"path" help:"Directory for the resulting PDFs and summary."`
}

func (p *ProcessCmd) Run(g *Globals) error {
	cfg, logger := g.load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	data, err := os.ReadFile(p.File)
	if err != nil {
		return fmt.Errorf("read cv: %w", err)
	}
	var job domain.JobSpec
	if p.Job != "" {
		if job, err = app.LoadJob(p.Job); err != nil {
			return err
		}
	}

	pipeline := application.Pipeline()
	upload, err := pipeline.Upload(ctx, filepath.Base(p.File), "application/pdf", data)
	if err != nil {
		return err
	}
	res, err := pipeline.Process(ctx, upload.ID, job)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(p.Out, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, ref := range res.Artifacts {
		_, pdf, err := pipeline.Artifact(ctx, ref)
		if err != nil {
			return err
		}
		name := filepath.Join(p.Out, fmt.Sprintf("%s_%s.pdf", ref.Document, ref.Variant))
		if err := os.WriteFile(name, pdf, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(p.Out, "summary.txt"), []byte(res.Summary+"\n"), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	fmt.Printf("document %s, job %s (cached: %t)\n\n%s\n", res.Document, res.Job, res.Cached, res.Summary)
	return nil
}

type CompileCmd struct {
	Source string `arg:"" type:"existingfile" help:"LaTeX source file."`
	Out    string `short:"o" type:"path" help:"Output PDF path; defaults to the source name with .pdf."`
}

func (c *CompileCmd) Run(g *Globals) error {
	cfg, logger := g.load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := os.ReadFile(c.Source)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	out := c.Out
	if out == "" {
		out = c.Source[:len(c.Source)-len(filepath.Ext(c.Source))] + ".pdf"
	}

	driver := app.NewCompiler(cfg, logger)
	doc, err := driver.Compile(ctx, string(source))
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Release(doc); err != nil {
			logger.Warn("release work dir", "error", err)
		}
	}()

	pdf, err := os.ReadFile(doc.Path)
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Println(out)
	return nil
}

type JobIDCmd struct {
	Spec string `arg:"" type:"existingfile" help:"JSON job spec."`
}

func (j *JobIDCmd) Run(_ *Globals) error {
	job, err := app.LoadJob(j.Spec)
	if err != nil {
		return err
	}
	id, err := cache.JobIdentity(job)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cvtailor"),
		kong.Description("Tailor CVs to job descriptions and compile them to PDF."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) {
			slog.Error("command failed", "stage", stageErr.Stage, "kind", stageErr.Kind, "error", stageErr.Err)
		} else {
			slog.Error("command failed", "error", err)
		}
		os.Exit(1)
	}
}
