package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ContentRenderer transforms scene markdown before it is written.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// TextHandler implements the interactive text interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	out   *termenv.Output
	title cases.Caser

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
		out:    termenv.NewOutput(w),
		title:  cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so that Input can honour its context.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			// Backoff for non-fatal errors to prevent CPU spikes on persistent failure
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (h *TextHandler) Present(ctx context.Context, step *Step) error {
	for _, cue := range step.Cues {
		switch cue.Kind {
		case domain.CueDelay:
			h.faint("...")
		case domain.CueSceneEvent:
			h.faint("* " + cue.Event + " *")
		}
	}
	for _, line := range DescribeDiff(step.Diff, step.Stages) {
		h.faint("  " + line)
	}
	for _, d := range step.Diagnostics {
		h.faint("! " + d.Message)
	}

	p := step.Presentation
	switch {
	case step.Ending != nil:
		h.ending(step.Ending)
	case p != nil && p.Scene != nil:
		h.scene(p.Scene)
	case p != nil && p.Choices != nil:
		h.choices(p.Choices)
	}
	return nil
}

func (h *TextHandler) scene(s *domain.ShowScene) {
	var md strings.Builder
	if s.Title != "" {
		fmt.Fprintf(&md, "## %s\n\n", s.Title)
	}
	if s.Speaker != "" {
		fmt.Fprintf(&md, "**%s:** ", s.Speaker)
	}
	md.WriteString(s.Text)
	h.markdown(md.String())
	h.faint("(enter to continue)")
}

func (h *TextHandler) choices(c *domain.ShowChoices) {
	if c.Prompt != "" {
		h.markdown(c.Prompt)
	}
	for i, o := range c.Options {
		line := fmt.Sprintf("  %d. %s", i+1, o.Text)
		if o.ID == c.DefaultOptionID {
			line += h.out.String(" (default)").Faint().String()
		}
		fmt.Fprintln(h.Writer, line)
	}
	for _, o := range c.Locked {
		h.faint("  -  " + o.Text + " (locked)")
	}
	if c.DefaultOptionID != "" && c.TimeoutSeconds > 0 {
		h.faint(fmt.Sprintf("(choosing the default in %ds)", c.TimeoutSeconds))
	}
}

func (h *TextHandler) ending(e *domain.Ending) {
	banner := "The End"
	if e.EndingType != "" {
		banner = h.title.String(strings.ToLower(e.EndingType)) + " Ending"
	}
	if e.Title != "" {
		banner += ": " + e.Title
	}
	fmt.Fprintln(h.Writer)
	fmt.Fprintln(h.Writer, h.out.String("*** "+banner+" ***").Bold())
	if e.Description != "" {
		h.markdown(e.Description)
	}
}

func (h *TextHandler) markdown(md string) {
	output := md
	if h.Renderer != nil {
		if rendered, err := h.Renderer(md); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(h.Writer, strings.TrimSpace(output))
}

func (h *TextHandler) faint(msg string) {
	fmt.Fprintln(h.Writer, h.out.String(msg).Faint())
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, "> ")
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(h.Writer)
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(res.text)
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(h.Writer, "[novella] %s\n", msg)
	return nil
}

// DescribeDiff renders a state diff as short lines such as "courage +2",
// sorted by kind then key. Stages annotate relationship lines.
func DescribeDiff(diff *domain.StateDiff, stages map[string]string) []string {
	if diff == nil {
		return nil
	}
	var lines []string
	numbers := func(m map[string]float64, stages map[string]string) {
		for _, k := range sortedKeys(m) {
			line := fmt.Sprintf("%s %+g", k, m[k])
			if stage := stages[k]; stage != "" {
				line += " (" + stage + ")"
			}
			lines = append(lines, line)
		}
	}
	numbers(diff.Stats, nil)
	numbers(diff.Relationships, stages)
	numbers(diff.Currency, nil)
	for _, k := range sortedKeys(diff.Inventory) {
		lines = append(lines, fmt.Sprintf("%s %+d", k, diff.Inventory[k]))
	}
	for _, k := range sortedKeys(diff.Flags) {
		if diff.Flags[k] {
			lines = append(lines, k+" set")
		} else {
			lines = append(lines, k+" cleared")
		}
	}
	for _, k := range sortedKeys(diff.Variables) {
		if v := diff.Variables[k]; v != nil {
			lines = append(lines, fmt.Sprintf("%s = %v", k, v))
		} else {
			lines = append(lines, k+" unset")
		}
	}
	return lines
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
