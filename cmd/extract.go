package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/jobify-ml/skillner/doctext"
	"github.com/jobify-ml/skillner/internal/logger"
	"github.com/jobify-ml/skillner/skillner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// The two user roles a document can belong to.
const (
	UserTypeJobSeeker = "jobseeker"
	UserTypeCompany   = "company"
)

var (
	skillStyle = lipgloss.NewStyle().Bold(true)
	scoreStyle = lipgloss.NewStyle().Faint(true)
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Extract skills from a resume or CV (.docx, .pdf or .txt)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd, args[0])
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().String("user-id", "", "identifier of the user the document belongs to")
	extractCmd.Flags().String("user-type", UserTypeJobSeeker, "role of the user: jobseeker or company")
}

func runExtract(cmd *cobra.Command, path string) error {
	ctx := context.Background()

	zl, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	userID := cmd.Flag("user-id").Value.String()
	userType := cmd.Flag("user-type").Value.String()
	if userType != UserTypeJobSeeker && userType != UserTypeCompany {
		return fmt.Errorf("unknown user type %q: want %q or %q", userType, UserTypeJobSeeker, UserTypeCompany)
	}

	config, err := getConfig()
	if err != nil {
		return fmt.Errorf("getting a config: %w", err)
	}

	// File-to-text first, so an unsupported extension fails before any
	// model download starts.
	text, err := doctext.FromFile(path)
	if err != nil {
		return err
	}
	zl.Debug("extracted document text",
		zap.String("file", path),
		zap.Int("chars", len(text)),
		zap.String("user_id", userID),
		zap.String("user_type", userType),
	)

	handle, err := skillner.Load(ctx, config)
	if err != nil {
		return fmt.Errorf("loading model %q: %w", config.Model, err)
	}
	defer func() { _ = handle.Close() }()

	spans, err := handle.Extractor().Extract(text)
	if err != nil {
		return fmt.Errorf("extracting skills: %w", err)
	}

	zl.Info("extraction finished", zap.Int("skills", len(spans)))
	for i, span := range spans {
		fmt.Printf("%d. skill: %s, confidence: %s\n",
			i,
			skillStyle.Render(span.Text),
			scoreStyle.Render(fmt.Sprintf("%.4f", span.Score)),
		)
	}
	return nil
}
