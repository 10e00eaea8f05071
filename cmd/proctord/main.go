// proctord - real-time exam-integrity monitoring daemon
//
//	proctord run      Run a monitored session until interrupted
//	proctord check    Scan a text file for plagiarism / AI-content cues
//	proctord report   Export the integrity report of an archived session
//	proctord version  Print the version
//
// In run mode the host capture process drops camera frames into the spool
// directory and pipes page/device events as JSON lines on stdin. Ending the
// process (SIGINT/SIGTERM) ends the session and writes the report.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Von-Etana/lune-sub000/internal/config"
	"github.com/Von-Etana/lune-sub000/internal/content"
	"github.com/Von-Etana/lune-sub000/internal/device"
	"github.com/Von-Etana/lune-sub000/internal/environment"
	"github.com/Von-Etana/lune-sub000/internal/framesource"
	"github.com/Von-Etana/lune-sub000/internal/logging"
	"github.com/Von-Etana/lune-sub000/internal/monitor"
	"github.com/Von-Etana/lune-sub000/internal/proctor"
	"github.com/Von-Etana/lune-sub000/internal/report"
	"github.com/Von-Etana/lune-sub000/internal/session"
	"github.com/Von-Etana/lune-sub000/internal/store"
	"github.com/Von-Etana/lune-sub000/internal/vision"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "report":
		cmdReport(os.Args[2:])
	case "version":
		fmt.Println("proctord " + version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`proctord - Exam Integrity Monitoring

USAGE:
    proctord <command> [options]

COMMANDS:
    run       Run a monitored session until interrupted
    check     Scan a text file for plagiarism / AI-content cues
    report    Export the integrity report of an archived session
    version   Print the version
    help      Show this help message

RUN MODE:
    proctord run -session s1 -candidate c1 -assessment a1 [-config proctord.toml]

    Camera frames are read from the configured spool directory; page and
    device events arrive as JSON lines on stdin, e.g.
        {"kind":"visibility_hidden"}
        {"kind":"window_resize","outer_width":1920,"inner_width":1200,...}
    Text files (.txt) dropped into the spool are scanned for plagiarism
    and AI-content cues. SIGINT or SIGTERM ends the session and writes
    the report.`)
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	return cfg
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (.toml, .yaml)")
	sessionID := fs.String("session", "", "session identifier")
	candidateID := fs.String("candidate", "", "candidate identifier")
	assessmentID := fs.String("assessment", "", "assessment identifier")
	outPath := fs.String("out", "", "report output path (default <session>.report.json)")
	fs.Parse(args)

	if *sessionID == "" || *candidateID == "" || *assessmentID == "" {
		fatal(fmt.Errorf("run requires -session, -candidate and -assessment"))
	}

	cfg := loadConfig(*cfgPath)
	if err := logging.Init(&logging.Config{
		Level:    logging.ParseLevel(cfg.Logging.Level),
		Format:   logging.ParseFormat(cfg.Logging.Format),
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	}); err != nil {
		fatal(err)
	}
	defer logging.Close()

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	events := newStdinEvents()

	mgr := proctor.New(proctor.Options{
		SessionID:         *sessionID,
		CandidateID:       *candidateID,
		AssessmentID:      *assessmentID,
		MaxTabSwitches:    cfg.Session.MaxTabSwitches,
		RequireFullscreen: cfg.Session.RequireFullscreen,
		Environment:       environmentInputs(cfg),
		Events:            events,
		Store:             st,
		DeviceConfig: device.Config{
			HeartbeatInterval: time.Duration(cfg.Device.HeartbeatSec) * time.Second,
			StaleAfter:        time.Duration(cfg.Device.StaleAfterMin) * time.Minute,
		},
		VisionConfig: vision.Config{
			FaceInterval: time.Duration(cfg.Vision.FaceIntervalSec) * time.Second,
			GazeInterval: time.Duration(cfg.Vision.GazeIntervalSec) * time.Second,
		},
		Callbacks: session.Callbacks{
			OnWarning: func(msg string) {
				fmt.Fprintf(os.Stderr, "WARNING: %s\n", msg)
			},
			OnTerminate: func(reason string) {
				fmt.Fprintf(os.Stderr, "TERMINATED: %s\n", reason)
			},
		},
	})

	if err := mgr.Start(); err != nil {
		fatal(err)
	}

	var spool *framesource.Spool
	if cfg.Spool.Dir != "" {
		spool, err = framesource.NewSpool(cfg.Spool.Dir, mgr.ObserveFrame, func(text string) {
			mgr.CheckPlagiarism(text)
			mgr.CheckAIGenerated(text)
		})
		if err != nil {
			fatal(err)
		}
		defer spool.Close()
		// Calibration needs a first frame in the spool; retry briefly.
		go func() {
			for i := 0; i < 10; i++ {
				if mgr.EnableVisualVerification(spool) {
					return
				}
				time.Sleep(time.Second)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	snap := mgr.End()
	if snap == nil {
		return
	}

	out := *outPath
	if out == "" {
		out = snap.SessionID + ".report.json"
	}
	if err := report.Build(snap).Export(out); err != nil {
		fatal(err)
	}
	fmt.Printf("Session %s: %s (integrity %d), report written to %s\n",
		snap.SessionID, snap.Status, snap.IntegrityScore, out)
}

func environmentInputs(cfg *config.Config) environment.Inputs {
	return environment.Inputs{
		CameraAvailable: cfg.Spool.Dir != "",
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	mode := fs.String("mode", "both", "plagiarism, ai, or both")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fatal(fmt.Errorf("check requires a text file argument"))
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	text := string(data)

	out := map[string]any{}
	if *mode == "plagiarism" || *mode == "both" {
		out["plagiarism"] = content.CheckPlagiarism(text)
	}
	if *mode == "ai" || *mode == "both" {
		out["ai_generated"] = content.CheckAIGenerated(text)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}

func cmdReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (.toml, .yaml)")
	outPath := fs.String("out", "", "report output path (default <session>.report.json)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fatal(fmt.Errorf("report requires a session ID argument"))
	}
	sessionID := fs.Arg(0)

	cfg := loadConfig(*cfgPath)
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	rep, err := report.FromStore(st, sessionID)
	if err != nil {
		fatal(err)
	}

	out := *outPath
	if out == "" {
		out = sessionID + ".report.json"
	}
	if err := rep.Export(out); err != nil {
		fatal(err)
	}
	fmt.Printf("Report for session %s written to %s\n", sessionID, out)
}

// stdinEvents reads monitor events as JSON lines from stdin.
type stdinEvents struct {
	ch chan monitor.Event
}

func newStdinEvents() *stdinEvents {
	s := &stdinEvents{ch: make(chan monitor.Event, 64)}
	go func() {
		defer close(s.ch)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev monitor.Event
			if err := json.Unmarshal(line, &ev); err != nil {
				fmt.Fprintf(os.Stderr, "bad event line: %v\n", err)
				continue
			}
			s.ch <- ev
		}
	}()
	return s
}

func (s *stdinEvents) Events() <-chan monitor.Event {
	return s.ch
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
