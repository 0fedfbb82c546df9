package sh

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/uci.go/pkg/platform"
	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell  *ishell.Shell
	Config *platform.Config
	Conn   *HostConn
}

// HostConn is a running host on an opened link.
type HostConn struct {
	Ctx    context.Context
	Cancel func()
	Host   *platform.Host
	DoneCh chan error
}

const (
	shellKey     = "$shell"
	closedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&CommandCmd,
		&ReportsCmd,
		&NamesCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *platform.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an opened link.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not opened"))
			return
		}
		fn(c)
	}
}

// DoCommand issues a command and prints the response.
func DoCommand(c *ishell.Context, gid, oid byte, payload msgs.Typed) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not opened")
		c.Err(err)
		return err
	}
	ctx := s.Conn.Ctx
	if s.Config.Timeout > 0 {
		var cancel func()
		// leave room for the host to expire the command first.
		ctx, cancel = context.WithTimeout(ctx, s.Config.Timeout+s.Config.ExpireInterval)
		defer cancel()
	}
	result, err := s.Conn.Host.Call(ctx, gid, oid, payload)
	if err != nil {
		c.Err(err)
		return err
	}
	return s.print(c, result)
}

func (s *Shell) print(c *ishell.Context, v msgs.Typed) error {
	if !s.OutputJSON {
		c.Println(v.String())
		return nil
	}
	out, err := FormatJSON(v)
	if err != nil {
		c.Err(err)
		return err
	}
	c.Println(out)
	return nil
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens the link and runs a host on it.
func (s *Shell) Open(linkURL string) error {
	s.Close()
	conf := *s.Config
	conf.LinkURL = linkURL
	if err := conf.Validate(); err != nil {
		return err
	}
	conn := &HostConn{DoneCh: make(chan error, 1)}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	host, err := platform.Open(conn.Ctx, &conf)
	if err != nil {
		conn.Cancel()
		return err
	}
	conn.Host = host
	go func() {
		conn.DoneCh <- host.Run(conn.Ctx)
	}()
	select {
	case <-host.Ready():
	case err := <-conn.DoneCh:
		conn.Cancel()
		return err
	}
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", linkURL))
	return nil
}

// Close stops the host and closes the link.
func (s *Shell) Close() {
	if s.Conn != nil {
		s.Conn.Cancel()
		<-s.Conn.DoneCh
		s.Conn = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Config.LinkURL != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.LinkURL)
		}
		if err := s.Open(s.Config.LinkURL); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.LinkURL, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// ParseOpcode parses a command name registered in msgs.DefaultRegistry,
// or "GID OID" in hex. It returns the number of args consumed.
func ParseOpcode(args []string) (gid, oid byte, n int, err error) {
	if len(args) == 0 {
		return 0, 0, 0, fmt.Errorf("command required")
	}
	if group, id, ok := msgs.DefaultRegistry.Find(msgs.DirCommand, args[0]); ok {
		return group, id, 1, nil
	}
	if len(args) < 2 {
		return 0, 0, 0, fmt.Errorf("unknown command %q", args[0])
	}
	g, err := strconv.ParseUint(args[0], 16, 4)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid GID %q", args[0])
	}
	o, err := strconv.ParseUint(args[1], 16, 6)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid OID %q", args[1])
	}
	return byte(g), byte(o), 2, nil
}

var (
	// OpenCmd opens a link.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[LINK-URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			linkURL := s.Config.LinkURL
			if len(c.Args) > 0 {
				linkURL = c.Args[0]
			}
			if err := s.Open(linkURL); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes current link.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"c"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// CommandCmd issues a command with a JSON payload.
	CommandCmd = ishell.Cmd{
		Name: "cmd",
		Help: "NAME|GID OID [JSON]",
		Func: MustBeOpen(func(c *ishell.Context) {
			gid, oid, n, err := ParseOpcode(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			payload, err := ParsePayload(strings.Join(c.Args[n:], " "))
			if err != nil {
				c.Err(fmt.Errorf("invalid payload: %w", err))
				return
			}
			DoCommand(c, gid, oid, payload)
		}),
	}

	// ReportsCmd prints reports.
	ReportsCmd = ishell.Cmd{
		Name:    "reports",
		Aliases: []string{"r"},
		Help:    "[COUNT] [DURATION]",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			count, wait := 1, 10*time.Second
			var err error
			if len(c.Args) > 0 {
				if count, err = strconv.Atoi(c.Args[0]); err != nil {
					c.Err(fmt.Errorf("invalid COUNT: %w", err))
					return
				}
			}
			if len(c.Args) > 1 {
				if wait, err = time.ParseDuration(c.Args[1]); err != nil {
					c.Err(fmt.Errorf("invalid DURATION: %w", err))
					return
				}
			}
			ch, unsubscribe := s.Conn.Host.Subscribe(count)
			defer unsubscribe()
			timer := time.NewTimer(wait)
			defer timer.Stop()
			for i := 0; i < count; i++ {
				select {
				case r, ok := <-ch:
					if !ok {
						c.Err(fmt.Errorf("host exited"))
						return
					}
					if s.OutputJSON {
						out, err := msgs.ReportJSON(r.Proto())
						if err != nil {
							c.Err(err)
							return
						}
						c.Println(out)
						continue
					}
					c.Println(r.String())
				case <-timer.C:
					return
				}
			}
		}),
	}

	// NamesCmd lists known command and report names.
	NamesCmd = ishell.Cmd{
		Name: "names",
		Help: "",
		Func: func(c *ishell.Context) {
			c.Println("commands:")
			for _, name := range msgs.DefaultRegistry.Names(msgs.DirCommand) {
				c.Println("  " + name)
			}
			c.Println("reports:")
			for _, name := range msgs.DefaultRegistry.Names(msgs.DirNotification) {
				c.Println("  " + name)
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(platform.MustLoad()).WithAutoOpen(true).Run(flag.Args()...)
}
