package cli

import (
	"errors"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	"quiz-attempt-service/internal/logger"
)

// NewSeedCmd loads quizzes from a YAML file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert quiz definitions from a YAML file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if file == "" {
				file = cfg.Quiz.File
			}
			if file == "" {
				return errors.New("no quiz file given; use --file or quiz.file")
			}
			if cfg.Postgres.URL == "" {
				return errors.New("postgres url not configured")
			}

			quizzes, err := memory.LoadQuizFile(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := runMigrations(ctx, cfg, log); err != nil {
				return err
			}
			pool, err := postgres.NewPool(ctx, cfg.Postgres.URL, postgres.PoolConfig{MaxConns: cfg.Postgres.MaxConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			ids := make([]string, 0, len(quizzes))
			for id := range quizzes {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			loader := postgres.NewQuizLoader(pool)
			for _, id := range ids {
				if err := loader.SaveQuiz(ctx, quizzes[id]); err != nil {
					return err
				}
				log.Info("quiz seeded", zap.String("quiz_id", id))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML quiz file (defaults to quiz.file)")
	return cmd
}
