package netresolve

import (
	"bytes"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

func init() {
	RegisterBackend("exec", func() Backend { return &execBackend{} })
}

// The exec backend spawns the command given in its settings, writes the
// request to its standard input one line per parameter, and parses
// `address` and `path` lines from its standard output. A blank line or EOF
// terminates the response.
type execBackend struct {
	BaseBackend
}

// Pipe plumbing shared by the subprocess-driven backends. Both pipe ends
// owned by the parent are switched to non-blocking mode and registered with
// the reactor.
type subprocess struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	input  []byte // remaining request bytes to write
	buf    []byte // incomplete last line of output
}

func startSubprocess(q *Query, argv []string, input string) (*subprocess, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	var inR, inW *os.File
	if input != "" {
		inR, inW, err = os.Pipe()
		if err != nil {
			outR.Close()
			outW.Close()
			return nil, err
		}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		if inR != nil {
			inR.Close()
			inW.Close()
		}
		return nil, err
	}
	outW.Close()
	if inR != nil {
		inR.Close()
	}

	p := &subprocess{cmd: cmd, stdin: inW, stdout: outR, input: []byte(input)}

	unix.SetNonblock(int(outR.Fd()), true)
	if err := q.WatchFD(int(outR.Fd()), EventRead); err != nil {
		p.cleanup(q)
		return nil, err
	}
	if inW != nil {
		unix.SetNonblock(int(inW.Fd()), true)
		if err := q.WatchFD(int(inW.Fd()), EventWrite); err != nil {
			p.cleanup(q)
			return nil, err
		}
	}

	return p, nil
}

func (p *subprocess) stdinFD() int {
	if p.stdin == nil {
		return -1
	}
	return int(p.stdin.Fd())
}

func (p *subprocess) stdoutFD() int {
	if p.stdout == nil {
		return -1
	}
	return int(p.stdout.Fd())
}

// Write as much of the request as the pipe accepts; close stdin when done.
func (p *subprocess) sendInput(q *Query) {
	if len(p.input) > 0 {
		n, err := unix.Write(p.stdinFD(), p.input)
		if n > 0 {
			p.input = p.input[n:]
		}
		if err == unix.EAGAIN || (err == nil && len(p.input) > 0) {
			return
		}
	}
	q.UnwatchFD(p.stdinFD())
	p.stdin.Close()
	p.stdin = nil
}

// Read available output and return the complete lines, keeping any partial
// line buffered. eof is set when the subprocess closed its end.
func (p *subprocess) readLines(q *Query) (lines []string, eof bool, err error) {
	buf := make([]byte, 1024)
	for {
		n, rerr := unix.Read(p.stdoutFD(), buf)
		if n > 0 {
			p.buf = append(p.buf, buf[:n]...)
			continue
		}
		if rerr == unix.EAGAIN {
			break
		}
		if rerr != nil {
			return nil, false, rerr
		}
		eof = true
		break
	}
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(p.buf[:i]))
		p.buf = p.buf[i+1:]
	}
	return lines, eof, nil
}

func (p *subprocess) cleanup(q *Query) {
	if p.stdin != nil {
		q.UnwatchFD(p.stdinFD())
		p.stdin.Close()
		p.stdin = nil
	}
	if p.stdout != nil {
		q.UnwatchFD(p.stdoutFD())
		p.stdout.Close()
		p.stdout = nil
	}
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}
}

func (b *execBackend) QueryForward(q *Query, settings []string) {
	if len(settings) == 0 {
		q.Fail()
		return
	}
	p, err := startSubprocess(q, settings, q.RequestString())
	if err != nil {
		logger(q).WithError(err).Error("failed to start subprocess")
		q.Fail()
		return
	}
	q.SetData(p)
}

func (b *execBackend) Dispatch(q *Query, fd int, events Events) {
	p := q.Data().(*subprocess)

	switch fd {
	case p.stdinFD():
		p.sendInput(q)
	case p.stdoutFD():
		lines, eof, err := p.readLines(q)
		if err != nil {
			q.Fail()
			return
		}
		for _, line := range lines {
			if line == "" {
				q.Finish()
				return
			}
			b.handleLine(q, line)
		}
		if eof {
			q.Finish()
		}
	default:
		q.Fail()
	}
}

func (b *execBackend) handleLine(q *Query, line string) {
	if rest, ok := strings.CutPrefix(line, "address "); ok {
		if ip, family, ifindex, ok := ParseAddress(rest); ok {
			q.AddAddress(family, ip, ifindex)
		}
		return
	}
	if rest, ok := strings.CutPrefix(line, "path "); ok {
		if path, ok := ParsePath(rest); ok {
			q.AddPath(path)
		}
	}
}

func (b *execBackend) Cleanup(q *Query) {
	if p, ok := q.Data().(*subprocess); ok {
		p.cleanup(q)
	}
}
