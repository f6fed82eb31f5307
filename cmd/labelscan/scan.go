package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/labelscan/internal/ai"
	"github.com/kiranshivaraju/labelscan/internal/ai/mock"
	"github.com/kiranshivaraju/labelscan/internal/config"
	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/internal/scan"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

var (
	offline            bool
	offlineIngredients []string
	analyzerMode       string
	jsonOutput         bool
	noHistory          bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Scan a photo of an ingredient label",
	Long: `Scan extracts the ingredient list from a label photo, rates every
ingredient and suggests alternative products for the risky ones.

With --offline no model is called: the ingredient list comes from
--ingredients and ratings come from the local table only.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&offline, "offline", false, "Run without an AI provider")
	scanCmd.Flags().StringSliceVar(&offlineIngredients, "ingredients", []string{"Water", "Paraben", "Fragrance"}, "Label contents assumed in --offline mode")
	scanCmd.Flags().StringVar(&analyzerMode, "mode", ai.ModeHybrid, "Risk analyzer: batch or hybrid")
	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	scanCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not save the scan to history")
}

// errScanFailed is returned after the failure message has been printed.
var errScanFailed = errors.New("scan failed")

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	file, err := readImage(args[0])
	if err != nil {
		return err
	}

	scanner, err := newScanner(ctx)
	if err != nil {
		return err
	}

	progress := scan.ObserverFunc(func(_, to scan.State) {
		if !jsonOutput {
			fmt.Fprintf(cmd.ErrOrStderr(), "... %s\n", to)
		}
	})
	out := scanner.ProcessImage(ctx, file, progress)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if !out.OK() {
		if !jsonOutput {
			fmt.Fprintln(cmd.ErrOrStderr(), out.Error)
		}
		return errScanFailed
	}
	if !jsonOutput {
		printScan(cmd.OutOrStdout(), out.Data)
	}

	if noHistory {
		return nil
	}
	return saveScan(cmd, file, out.Data)
}

func newScanner(ctx context.Context) (*scan.Service, error) {
	kb := knowledge.Default()

	var (
		provider models.AIProvider
		callTime time.Duration
	)
	if offline {
		provider = mock.NewOfflineProvider(offlineIngredients)
		callTime = time.Second
	} else {
		aiCfg, err := config.LoadAI()
		if err != nil {
			return nil, err
		}
		if provider, err = ai.NewProvider(ctx, aiCfg); err != nil {
			return nil, err
		}
		callTime = aiCfg.InferenceTimeout
	}

	analyzer, err := ai.NewAnalyzer(config.AnalysisConfig{
		Mode:        strings.ToLower(analyzerMode),
		Concurrency: 4,
	}, provider, kb, nil, callTime)
	if err != nil {
		return nil, err
	}

	return scan.NewService(
		ai.NewExtractor(provider, kb, callTime),
		analyzer,
		ai.NewSuggester(provider, callTime),
	), nil
}

// readImage loads path and declares its type from the extension, falling
// back to content sniffing.
func readImage(path string) (scan.ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scan.ImageFile{}, fmt.Errorf("reading image: %w", err)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return scan.ImageFile{FileName: filepath.Base(path), ContentType: ct, Data: data}, nil
}

func saveScan(cmd *cobra.Command, file scan.ImageFile, data *models.ProcessedScanData) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	result, err := models.NewScanResult(*data, file.FileName, "", time.Now())
	if err != nil {
		return err
	}
	if err := h.Append(ctx, localOwner, *result); err != nil {
		return fmt.Errorf("saving scan to history: %w", err)
	}
	if !jsonOutput {
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved as %s\n", result.ID)
	}
	return nil
}

func printScan(w io.Writer, data *models.ProcessedScanData) {
	if len(data.DetailedIngredients) == 0 {
		fmt.Fprintln(w, "Ingredient analysis is unavailable for this label.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INGREDIENT\tRISK\tHEALTH IMPACT")
		for _, ing := range data.DetailedIngredients {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", ing.Name, ing.RiskLevel, firstSentence(ing.HealthImpact))
		}
		tw.Flush()
	}

	if len(data.Alternatives) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSafer alternatives:")
	for _, p := range data.Alternatives {
		fmt.Fprintf(w, "  - %s: %s\n", p.Name, p.Reason)
	}
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
