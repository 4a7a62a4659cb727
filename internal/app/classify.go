package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"yutai-ranker/internal/benefit"
)

// ClassifyOptions configure the classify command.
type ClassifyOptions struct {
	Code string
	// Texts are benefit descriptions; when empty they are read from In, one per line.
	Texts  []string
	In     io.Reader
	Format string
	Out    io.Writer
}

// Classify runs the normalizer over free text without touching storage.
func (a *App) Classify(_ context.Context, opts ClassifyOptions) error {
	normalizer, err := a.newNormalizer()
	if err != nil {
		return err
	}
	code := opts.Code
	if code == "" {
		code = "0000"
	}

	texts := opts.Texts
	if len(texts) == 0 {
		in := opts.In
		if in == nil {
			in = os.Stdin
		}
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				texts = append(texts, line)
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
	if len(texts) == 0 {
		return errors.New("no benefit text given")
	}

	rows := make([]benefit.RawRow, len(texts))
	for i, text := range texts {
		rows[i] = benefit.RawRow{Code: code, Description: text}
	}
	records := benefit.Dedupe(normalizer.NormalizeAll(rows))

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, "json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	taxonomy := normalizer.Taxonomy()
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "category\tlabel\tvalue\tmin_shares\tmonth\tlong_term\tdescription")
	for _, r := range records {
		longTerm := "-"
		if r.HasLongTermHolding {
			longTerm = "yes"
			if r.LongTermMonths != nil {
				longTerm = strconv.Itoa(*r.LongTermMonths) + "m"
			}
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.Category, taxonomy.Label(r.Category), r.MonetaryValue, r.MinShares, r.EligibilityMonth, longTerm, sanitizeInline(r.Description))
	}
	if dropped := len(texts) - len(records); dropped > 0 {
		fmt.Fprintf(writer, "(%d noise or duplicate rows dropped)\n", dropped)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
