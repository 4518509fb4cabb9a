package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"homeledger/models"
	"homeledger/pkg/account"
	"homeledger/pkg/config"
	"homeledger/pkg/logging"
	"homeledger/pkg/ocr"
	"homeledger/pkg/ocr/opencv"
	"homeledger/pkg/ocr/tesseract"
	"homeledger/pkg/report"
	"homeledger/process"
)

var appCfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("homeledger failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "homeledger",
		Short:         "Household finance API with receipt OCR",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)
			appCfg = cfg
			jwtSecret = []byte(cfg.JWTSecret)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Run AutoMigrate and seeding, then exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				appCfg.DBAutoMigrate = true
				if err := initDB(appCfg); err != nil {
					return err
				}
				fmt.Println("migration and seeding completed")
				return nil
			},
		},
		newOCRCmd(),
		newWatchCmd(),
		newReportCmd(),
		newResetPasswordCmd(),
	)
	return root
}

const (
	tempSweepInterval = 10 * time.Minute
	tempMaxAge        = time.Hour
)

// buildPipeline wires the Tesseract engine and image enhancer from config.
// The OpenCV cleaner is used when the binary was built with it.
func buildPipeline(cfg *config.Config, reg prometheus.Registerer) (*ocr.Pipeline, error) {
	m := ocr.NewMetrics(reg)
	ocrCfg := cfg.OCR()
	if n, err := ocr.SweepTempFiles(ocrCfg.TempDir, tempMaxAge); err != nil {
		log.Warn().Err(err).Msg("sweep ocr temp files")
	} else if n > 0 {
		log.Info().Int("removed", n).Msg("removed stale ocr images")
	}

	var pre ocr.Preprocessor = ocr.Passthrough{}
	cleaner := "none"
	if cfg.OCRPreprocess {
		var opts []ocr.EnhancerOption
		if c, err := opencv.New(); err == nil {
			opts = append(opts, ocr.WithCleaner(c))
		} else {
			log.Debug().Err(err).Msg("using imaging cleaner")
		}
		e := ocr.NewEnhancer(ocrCfg, m, opts...)
		cleaner = e.CleanerName()
		pre = e
	}
	log.Info().Str("tesseract", tesseract.Version()).Str("languages", ocrCfg.Languages).Dur("timeout", ocrCfg.Timeout).Str("cleaner", cleaner).Msg("ocr pipeline ready")
	return ocr.NewPipeline(ocrCfg, pre, tesseract.New(), ocr.WithMetrics(m))
}

func runServe(ctx context.Context) error {
	if err := initDB(appCfg); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	p, err := buildPipeline(appCfg, reg)
	if err != nil {
		return err
	}
	receiptPipeline = p
	go ocr.RunTempJanitor(ctx, appCfg.OCR().TempDir, tempSweepInterval, tempMaxAge)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(newHTTPMetrics(reg)))
	r.MaxMultipartMemory = appCfg.UploadMaxBytes
	setupRoutes(r, reg)

	srv := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newOCRCmd() *cobra.Command {
	var langs string
	cmd := &cobra.Command{
		Use:   "ocr <image>",
		Short: "Run the receipt pipeline on one image and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(appCfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			res, err := p.Run(cmd.Context(), ocr.Input{ImagePath: args[0], Languages: langs})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&langs, "lang", "", "override TESSERACT_LANGS, e.g. eng+deu")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		dir, processedDir, email string
		workers                  int
		dryRun, watch            bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest receipt images from a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(appCfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			in := &process.Ingester{
				Dir:          dir,
				ProcessedDir: processedDir,
				Workers:      workers,
				DryRun:       dryRun,
				Runner:       p,
			}
			if !dryRun {
				if email == "" {
					return errors.New("--user is required unless --dry-run is set")
				}
				if err := initDB(appCfg); err != nil {
					return err
				}
				store, err := process.NewGormStore(cmd.Context(), db, email)
				if err != nil {
					return err
				}
				log.Info().Int("known_receipts", store.Known()).Str("user", email).Msg("preloaded receipts")
				in.Store = store
			}
			if watch {
				if err := in.Watch(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
			} else {
				in.Scan(cmd.Context())
			}
			st := in.Stats()
			log.Info().Int64("processed", st.Processed).Int64("skipped", st.Skipped).Int64("failed", st.Failed).Msg("ingestion finished")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "inbox", "directory to scan for receipt images")
	cmd.Flags().StringVar(&processedDir, "processed-dir", "", "move ingested images here (default: leave in place)")
	cmd.Flags().StringVar(&email, "user", "", "email of the user that owns the ingested receipts")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default NumCPU)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run OCR and log results without touching the database")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep watching the directory for new files")
	return cmd
}

func newReportCmd() *cobra.Command {
	var email, month string
	var list bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a monthly summary of a user's receipts and transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(appCfg); err != nil {
				return err
			}
			var user models.User
			if err := db.Where("email = ?", account.NormalizeEmail(email)).First(&user).Error; err != nil {
				return fmt.Errorf("user %q: %w", email, err)
			}
			s, receipts, err := report.Monthly(cmd.Context(), db, user.ID, month)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report for %s month=%s (UTC):\n", user.Email, s.Month)
			fmt.Fprintf(out, "  receipts=%d items=%d receipt_spend=%.2f\n", s.Receipts, s.ReceiptItems, s.ReceiptSpend)
			fmt.Fprintf(out, "  income=%.2f expenses=%.2f net=%.2f\n", s.Income, s.Expenses, s.Net)
			for _, ct := range s.ByCategory {
				fmt.Fprintf(out, "  %-8s %-20s %10.2f (%d)\n", ct.Type, ct.Category, ct.Amount, ct.Count)
			}
			if list {
				for _, r := range receipts {
					fmt.Fprintf(out, "%d|%s|%s|%d items\n", r.ID, r.Date.Format(time.DateOnly), r.ImageURL, len(r.Items))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "user", "", "user email")
	cmd.Flags().StringVar(&month, "month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	cmd.Flags().BoolVar(&list, "list", false, "also list the month's receipts")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newResetPasswordCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(appCfg); err != nil {
				return err
			}
			if err := account.ResetPassword(cmd.Context(), db, email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password reset for %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "user", "", "user email")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
