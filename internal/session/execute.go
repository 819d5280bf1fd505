package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/normanking/seifmios/internal/command"
	"github.com/normanking/seifmios/internal/lexicon"
	"github.com/normanking/seifmios/internal/metrics"
)

// importProgressEvery is how many lines pass between import progress reports.
const importProgressEvery = 10000

// maxImportLine is the longest line import will tell; longer ones are skipped.
const maxImportLine = 1 << 20

var errLineTooLong = errors.New("line too long")

// execute runs one command and reports whether the session should stop.
func (s *Session) execute(req request) (quit bool) {
	defer close(req.lines)

	cmd, err := command.Parse(req.args)
	if err != nil {
		var ue *command.UsageError
		if errors.As(err, &ue) {
			for _, line := range ue.Lines {
				req.emit(line)
			}
			return false
		}
		req.emit("Ignored: " + err.Error())
		return false
	}
	metrics.Commands.WithLabelValues(cmd.Verb.String()).Inc()

	switch cmd.Verb {
	case command.Help:
		for _, line := range command.HelpLines {
			req.emit(line)
		}

	case command.Quit:
		s.log.Info("Quit requested")
		return true

	case command.ImportLines:
		s.importLines(req, cmd.Args[0])

	case command.ListCategories:
		for _, line := range s.lex.ShowCategories() {
			req.emit(line)
		}

	case command.Find:
		lines, err := s.lex.FindRelation(cmd.Args[0], cmd.Args[1])
		if err != nil {
			req.emit("Ignored: " + err.Error())
			break
		}
		for _, line := range lines {
			req.emit(line)
		}

	case command.Stats:
		for _, line := range statsLines(s.lex.Stats()) {
			req.emit(line)
		}

	case command.Respond:
		u, ok := s.lex.Initiate(s.rng, s.console, s.params)
		if !ok {
			req.emit("Ignored: nothing learned yet")
			break
		}
		req.emit("Original: " + u.Text)
		req.emit("Response: " + u.Drifted)

	case command.Tell:
		s.lex.Tell(s.console, s.me, cmd.Args[0])
		metrics.MessagesTold.WithLabelValues("console").Inc()
		metrics.Messages.Set(float64(s.lex.Len()))

	case command.Connect:
		s.connect(req, cmd.Args)

	case command.Get:
		req.emit(tunables[cmd.Args[0]].get(s))

	case command.Set:
		name, value := cmd.Args[0], cmd.Args[1]
		if err := tunables[name].set(s, value); err != nil {
			req.emit(fmt.Sprintf("Ignored: %v", err))
			break
		}
		s.log.Info("Set %s to %s", name, value)

	case command.Save:
		s.save(req, cmd.Args)

	case command.Load:
		s.load(req, cmd.Args)
	}
	return false
}

func (s *Session) importLines(req request, path string) {
	f, err := os.Open(path)
	if err != nil {
		s.log.Warn("Import of %s failed: %v", path, err)
		req.emit("Ignored: Unable to open file")
		return
	}
	defer f.Close()

	req.emit(fmt.Sprintf("Importing lines from `%s`...", path))
	author := s.lex.Author(s.console, path)
	r := bufio.NewReader(f)

	n, told := 0, 0
	for {
		line, err := readLine(r)
		if errors.Is(err, io.EOF) {
			break
		}
		n++
		if err != nil {
			s.log.Warn("Import of %s: line %d: %v", path, n, err)
			req.emit(fmt.Sprintf("Ignored: File had read error on line %d", n))
			if errors.Is(err, errLineTooLong) {
				continue
			}
			break
		}
		s.lex.Tell(s.console, author, line)
		told++
		if n%importProgressEvery == 0 {
			req.emit(fmt.Sprintf("On line %d of %s", n, path))
		}
	}

	metrics.MessagesTold.WithLabelValues("import").Add(float64(told))
	metrics.Messages.Set(float64(s.lex.Len()))
	s.log.Info("Imported %d of %d lines from %s", told, n, path)
}

// readLine returns the next line without its line ending. A line longer than
// maxImportLine is consumed and reported as errLineTooLong.
func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, more, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		if !tooLong && len(buf)+len(chunk) > maxImportLine {
			tooLong, buf = true, nil
		}
		if !tooLong {
			buf = append(buf, chunk...)
		}
		if !more {
			break
		}
	}
	if tooLong {
		return "", errLineTooLong
	}
	return string(buf), nil
}

func (s *Session) connect(req request, args []string) {
	if s.connector == nil {
		req.emit("Ignored: no transports available")
		return
	}
	kind, target := args[0], ""
	if len(args) > 1 {
		target = args[1]
	}
	if err := s.connector.Connect(kind, target); err != nil {
		req.emit(fmt.Sprintf("Ignored: %v", err))
	}
}

func (s *Session) snapshotPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return s.storePath
}

func (s *Session) save(req request, args []string) {
	if s.store == nil {
		req.emit("Ignored: no snapshot store configured")
		return
	}
	path := s.snapshotPath(args)
	if err := s.store.Save(req.ctx, path, s.lex.Snapshot()); err != nil {
		s.log.Error("Saving snapshot to %s failed: %v", path, err)
		req.emit(fmt.Sprintf("Ignored: %v", err))
		return
	}
	s.log.Info("Saved %d messages to %s", s.lex.Len(), path)
	req.emit(fmt.Sprintf("Saved %d messages to %s", s.lex.Len(), path))
}

func (s *Session) load(req request, args []string) {
	if s.store == nil {
		req.emit("Ignored: no snapshot store configured")
		return
	}
	path := s.snapshotPath(args)
	snap, err := s.store.Load(req.ctx, path)
	if err != nil {
		req.emit(fmt.Sprintf("Ignored: %v", err))
		return
	}
	lex, err := lexicon.Restore(snap)
	if err != nil {
		s.log.Error("Snapshot %s rejected: %v", path, err)
		req.emit(fmt.Sprintf("Ignored: %v", err))
		return
	}
	s.adopt(lex)
	s.log.Info("Loaded %d messages from %s", lex.Len(), path)
	req.emit(fmt.Sprintf("Loaded %d messages from %s", lex.Len(), path))
}

func statsLines(st lexicon.Stats) []string {
	return []string{
		fmt.Sprintf("Words: %d", st.Words),
		fmt.Sprintf("Sources: %d", st.Sources),
		fmt.Sprintf("Authors: %d", st.Authors),
		fmt.Sprintf("Conversations: %d", st.Conversations),
		fmt.Sprintf("Messages: %d", st.Messages),
		fmt.Sprintf("Instances: %d", st.Instances),
		fmt.Sprintf("Categories: %d (%d shared)", st.Categories, st.Shared),
		fmt.Sprintf("Cocategory links: %d pre, %d post", st.PreLinks, st.PostLinks),
	}
}
