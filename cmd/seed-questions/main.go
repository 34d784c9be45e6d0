package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/database"
	"github.com/roadready/theory-backend/internal/logger"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/roadready/theory-backend/internal/service"
	"github.com/roadready/theory-backend/internal/validator"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// bankFile is the layout of a question bank seed file.
type bankFile struct {
	Questions []model.QuestionRequest `yaml:"questions"`
}

func main() {
	file := flag.StringP("file", "f", "seeds/questions.yaml", "Path to the YAML question bank")
	dryRun := flag.Bool("dry-run", false, "Validate the file without writing to the database")
	flag.Parse()

	validator.Setup()

	f, err := os.Open(*file)
	if err != nil {
		color.Red("Cannot open %s: %v", *file, err)
		os.Exit(1)
	}
	defer f.Close()

	questions, problems := loadBank(f)
	if len(problems) > 0 {
		color.Red("%s has %d invalid question(s):", *file, len(problems))
		for _, p := range problems {
			fmt.Println("  " + p)
		}
		os.Exit(1)
	}
	color.Cyan("Loaded %d question(s) from %s", len(questions), *file)

	if *dryRun {
		color.Green("Dry run: file is valid")
		return
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Going through the service keeps the category cache consistent.
	questionService := service.NewQuestionService(repository.NewQuestionRepository(pool), service.NewRedisCache(rdb), log)

	created := 0
	for i := range questions {
		q := questions[i].ToQuestion()
		if err := questionService.Create(ctx, q); err != nil {
			color.Red("Question %d (%q): %v", i+1, q.Prompt, err)
			continue
		}
		created++
		if created%50 == 0 {
			fmt.Printf("Created %d questions...\n", created)
		}
	}

	color.Green("\nSeed completed! Added %d/%d questions.", created, len(questions))
}

// loadBank decodes and validates a seed file. Every invalid entry is reported
// so the file can be fixed in one pass.
func loadBank(r io.Reader) ([]model.QuestionRequest, []string) {
	var bank bankFile
	if err := yaml.NewDecoder(r).Decode(&bank); err != nil {
		return nil, []string{fmt.Sprintf("decode: %v", err)}
	}
	if len(bank.Questions) == 0 {
		return nil, []string{"no questions found"}
	}

	var problems []string
	for i := range bank.Questions {
		q := &bank.Questions[i]
		q.Category = strings.TrimSpace(q.Category)

		fields := validator.Struct(q)
		if fields == nil && *q.CorrectAnswer >= len(q.Options) {
			fields = map[string]string{"correct_answer": "correct_answer must index one of the options"}
		}
		for _, key := range sortedKeys(fields) {
			problems = append(problems, fmt.Sprintf("#%d %s: %s", i+1, key, fields[key]))
		}
	}
	return bank.Questions, problems
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
