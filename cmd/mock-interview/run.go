package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/core/types"
	"github.com/vango-go/mock-interview/pkg/interview"
	"github.com/vango-go/mock-interview/pkg/interview/bridge"
	"github.com/vango-go/mock-interview/pkg/interview/record"
)

type runOptions struct {
	personaID  string
	harshness  int
	jobFile    string
	resumeFile string
}

func newRunCmd(deps cliDeps) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one interview in the terminal",
		Long: `run starts an interview with the chosen persona. The agent speaks through
ElevenLabs; lines typed on stdin are sent as text answers. Type /end or
close stdin to finish and print the summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterview(cmd.Context(), opts, deps)
		},
	}
	cmd.Flags().StringVarP(&opts.personaID, "persona", "p", "tech_lead", "Interviewer persona id")
	cmd.Flags().IntVar(&opts.harshness, "harshness", -1, "Harshness 0-100 (default: the persona's)")
	cmd.Flags().StringVar(&opts.jobFile, "job-file", "", "File with the job description")
	cmd.Flags().StringVar(&opts.resumeFile, "resume-file", "", "File with the candidate resume")
	return cmd
}

func runInterview(ctx context.Context, opts runOptions, deps cliDeps) error {
	cfg, logger, catalog, err := setup(deps)
	if err != nil {
		return err
	}
	if deps.newTransport == nil {
		return fmt.Errorf("missing newTransport dependency")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p, ok := catalog.Get(opts.personaID)
	if !ok {
		return fmt.Errorf("unknown persona %q (available: %s)", opts.personaID, strings.Join(catalog.IDs(), ", "))
	}
	sessionCfg := types.SessionConfig{Persona: p, Harshness: p.DefaultHarshness}
	if opts.harshness >= 0 {
		sessionCfg.Harshness = opts.harshness
	}
	if sessionCfg.JobDescription, err = readOptionalFile(opts.jobFile); err != nil {
		return err
	}
	if sessionCfg.Resume, err = readOptionalFile(opts.resumeFile); err != nil {
		return err
	}

	con := newConsole(deps.stdout)
	done := make(chan struct{})
	var doneOnce sync.Once

	var iv *interview.Interview
	iv = interview.New(interview.Options{
		Transport:    deps.newTransport(cfg, logger),
		AgentID:      cfg.AgentID,
		FirstMessage: cfg.FirstMessage,
		Baseline:     &cfg.BaselineScore,
		Prompt:       cfg.PromptPolicy(),
		Logger:       logger,
		CloseTimeout: cfg.EndTimeout,
		OnChange: func(s interview.State) {
			con.state(s, iv.Transcript())
			if s.Status == types.StatusDisconnected || s.Status == types.StatusErrored {
				doneOnce.Do(func() { close(done) })
			}
		},
		OnScore: con.score,
	})

	con.printf("Interviewer: %s, %s (harshness %d)\n", p.Name, p.Role, types.ClampHarshness(sessionCfg.Harshness))
	if _, err := iv.Start(ctx, sessionCfg); err != nil {
		return fmt.Errorf("start interview: %s", core.Message(err))
	}
	if isTerminal(deps.stdin) {
		con.printf("Connected. Type an answer and press enter; /end finishes.\n")
	}

	lines := make(chan string)
	stopReading := make(chan struct{})
	defer close(stopReading)
	go readLines(deps.stdin, lines, stopReading)

	var sigCh chan os.Signal
	if deps.signalNotify != nil && deps.signalStop != nil {
		sigCh = make(chan os.Signal, 1)
		deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer deps.signalStop(sigCh)
	}

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/end" {
				break loop
			}
			if err := iv.Say(line); err != nil {
				con.printf("! %s\n", core.Message(err))
			}
		case <-done:
			break loop
		case <-sigCh:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	endCtx, cancel := context.WithTimeout(context.Background(), cfg.EndTimeout)
	defer cancel()
	iv.End(endCtx)
	con.summary(iv.Summary())
	return nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// readLines forwards lines from r until EOF or until done is closed.
func readLines(r io.Reader, out chan<- string, done <-chan struct{}) {
	defer close(out)
	if r == nil {
		return
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-done:
			return
		}
	}
}

// console prints interview progress. Callbacks arrive from several
// goroutines so every write is serialized.
type console struct {
	mu     sync.Mutex
	w      io.Writer
	status types.Status
	turns  int
}

func newConsole(w io.Writer) *console {
	if w == nil {
		w = os.Stdout
	}
	return &console{w: w}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) state(s interview.State, transcript []types.TranscriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Status != c.status {
		c.status = s.Status
		if s.Error != "" {
			fmt.Fprintf(c.w, "[%s] %s\n", s.Status, s.Error)
		} else {
			fmt.Fprintf(c.w, "[%s]\n", s.Status)
		}
	}
	for ; c.turns < len(transcript); c.turns++ {
		e := transcript[c.turns]
		if e.Speaker == types.SpeakerAgent {
			fmt.Fprintf(c.w, "Interviewer: %s\n", e.Message)
		} else {
			fmt.Fprintf(c.w, "You: %s\n", e.Message)
		}
	}
}

func (c *console) score(n bridge.Notification) {
	c.printf("  %s  score %d  %s\n", n.Label(), n.Score, n.Reason)
}

func (c *console) summary(s record.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "\nFinal score: %d/100 with %s (harshness %d)\n", s.FinalScore, s.Persona.Name, s.Harshness)
	if len(s.Feedback) == 0 {
		fmt.Fprintln(c.w, "No answers were rated.")
		return
	}
	for i, ev := range s.Feedback {
		fmt.Fprintf(c.w, "%2d. %+d → %d  %s\n", i+1, ev.Delta, ev.Score, ev.Reason)
	}
}
