package junction

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/junction/internal/port"
)

// AllocParams carries whichever of a tuple's params a given rallocate spec
// needs; unused fields are ignored. The allocator itself is a closed set
// of string tuples dispatched to Go methods rather than a compile-time
// perfect hash table.
type AllocParams struct {
	Connect string // connect address, or the path for (octets, local)/(octets, file, ...)
	Bind    string // local bind address, for bind_connect and listen variants
	FD      int    // existing descriptor, for acquire variants
}

// AllocResult holds whichever Channels a rallocate call produced; variants
// that produce only one direction leave the other nil.
type AllocResult struct {
	Input  *Channel
	Output *Channel
}

// Rallocate is the Channel allocation factory, addressed by a tuple of
// tokens given either as a comma-joined string ("octets,ip4,tcp") or the
// IRI form ("octets://ip4:tcp"); both normalize to the same token list
// and dispatch identically.
func (j *Junction) Rallocate(spec string, params AllocParams) (AllocResult, error) {
	tokens := tokenizeSpec(spec)
	if len(tokens) == 0 {
		return AllocResult{}, fmt.Errorf("junction: rallocate: empty spec")
	}

	switch tokens[0] {
	case "octets":
		return j.rallocateOctets(tokens[1:], params)
	case "sockets":
		return j.rallocateSockets(tokens[1:], params)
	case "ports":
		return j.rallocatePorts(tokens[1:], params)
	case "datagrams":
		return j.rallocateDatagrams(tokens[1:], params)
	default:
		return AllocResult{}, fmt.Errorf("junction: rallocate: unknown freight %q", tokens[0])
	}
}

func tokenizeSpec(spec string) []string {
	spec = strings.ReplaceAll(spec, "://", ",")
	spec = strings.NewReplacer(":", ",", "/", ",").Replace(spec)
	var out []string
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func network(tokens []string, def string) string {
	for _, t := range tokens {
		if t == "tcp" || t == "udp" {
			return t
		}
	}
	return def
}

func ipNetwork(family string, transport string) string {
	suffix := "4"
	if family == "ip6" {
		suffix = "6"
	}
	return transport + suffix
}

func (j *Junction) rallocateOctets(tokens []string, p AllocParams) (AllocResult, error) {
	if len(tokens) == 0 {
		return AllocResult{}, fmt.Errorf("junction: rallocate octets: missing address family")
	}

	switch tokens[0] {
	case "ip4", "ip6":
		transport := network(tokens, "tcp")
		net := ipNetwork(tokens[0], transport)
		var prt *port.Port
		var err error
		if hasToken(tokens, "bind") {
			prt, err = port.BindConnect(net, p.Bind, p.Connect)
		} else {
			prt, err = port.Connect(net, p.Connect)
		}
		if err != nil {
			return AllocResult{}, err
		}
		return j.octetsPairFromPort(prt), nil

	case "local":
		prt, err := port.Connect("unix", p.Connect)
		if err != nil {
			return AllocResult{}, err
		}
		return j.octetsPairFromPort(prt), nil

	case "acquire":
		kind, err := port.Identify(p.FD)
		if err != nil {
			return AllocResult{}, err
		}
		dirs := acquireDirections(tokens)
		prt := port.New(p.FD, kind, dirs...)
		return j.octetsFromAcquired(prt, dirs), nil

	case "spawn":
		if len(tokens) < 2 {
			return AllocResult{}, fmt.Errorf("junction: rallocate octets spawn: missing mode")
		}
		switch tokens[1] {
		case "unidirectional":
			r, w, err := port.Pipe()
			if err != nil {
				return AllocResult{}, err
			}
			return AllocResult{
				Input:  j.newOctetsChannel(r, false),
				Output: j.newOctetsChannel(w, true),
			}, nil
		case "bidirectional":
			a, b, err := port.Socketpair()
			if err != nil {
				return AllocResult{}, err
			}
			out := j.newOctetsChannel(a, true)
			in := j.newOctetsChannel(b, false)
			return AllocResult{Input: in, Output: out}, nil
		default:
			return AllocResult{}, fmt.Errorf("junction: rallocate octets spawn: unknown mode %q", tokens[1])
		}

	case "file":
		mode := "read"
		if len(tokens) > 1 {
			mode = tokens[1]
		}
		flags, output := fileOpenFlags(mode)
		prt, err := port.Open(p.Connect, flags, 0o644)
		if err != nil {
			return AllocResult{}, err
		}
		ch := j.newOctetsChannel(prt, output)
		if output {
			return AllocResult{Output: ch}, nil
		}
		return AllocResult{Input: ch}, nil

	default:
		return AllocResult{}, fmt.Errorf("junction: rallocate octets: unknown token %q", tokens[0])
	}
}

func (j *Junction) octetsPairFromPort(prt *port.Port) AllocResult {
	return AllocResult{
		Input:  j.newOctetsChannel(prt, false),
		Output: j.newOctetsChannel(prt, true),
	}
}

func (j *Junction) octetsFromAcquired(prt *port.Port, dirs []port.Direction) AllocResult {
	var res AllocResult
	for _, d := range dirs {
		if d == port.DirectionInput {
			res.Input = j.newOctetsChannel(prt, false)
		} else {
			res.Output = j.newOctetsChannel(prt, true)
		}
	}
	return res
}

func (j *Junction) newOctetsChannel(prt *port.Port, output bool) *Channel {
	return newChannel(j, prt, octetsFreight{}, output)
}

func acquireDirections(tokens []string) []port.Direction {
	if hasToken(tokens, "input") {
		return []port.Direction{port.DirectionInput}
	}
	if hasToken(tokens, "output") {
		return []port.Direction{port.DirectionOutput}
	}
	return []port.Direction{port.DirectionInput, port.DirectionOutput}
}

func fileOpenFlags(mode string) (flags int, output bool) {
	switch mode {
	case "overwrite":
		return unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC, true
	case "append":
		return unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND, true
	default:
		return unix.O_RDONLY, false
	}
}

func (j *Junction) rallocateSockets(tokens []string, p AllocParams) (AllocResult, error) {
	if len(tokens) == 0 {
		return AllocResult{}, fmt.Errorf("junction: rallocate sockets: missing address family")
	}
	if tokens[0] == "acquire" {
		kind, err := port.Identify(p.FD)
		if err != nil {
			return AllocResult{}, err
		}
		prt := port.New(p.FD, kind, port.DirectionInput)
		ch := newChannel(j, prt, socketsFreight{}, false)
		return AllocResult{Input: ch}, nil
	}

	var net string
	switch tokens[0] {
	case "ip4":
		net = "tcp4"
	case "ip6":
		net = "tcp6"
	case "local":
		net = "unix"
	default:
		return AllocResult{}, fmt.Errorf("junction: rallocate sockets: unknown family %q", tokens[0])
	}
	prt, err := port.Listen(net, p.listenAddr())
	if err != nil {
		return AllocResult{}, err
	}
	ch := newChannel(j, prt, socketsFreight{}, false)
	return AllocResult{Input: ch}, nil
}

// listenAddr resolves the address a listen-type allocation binds to:
// Bind when given, else Connect (callers commonly supply just one
// address for a listener).
func (p AllocParams) listenAddr() string {
	if p.Bind != "" {
		return p.Bind
	}
	return p.Connect
}

func (j *Junction) rallocatePorts(tokens []string, p AllocParams) (AllocResult, error) {
	if len(tokens) >= 2 && tokens[0] == "spawn" && tokens[1] == "bidirectional" {
		a, b, err := port.Socketpair()
		if err != nil {
			return AllocResult{}, err
		}
		out := newChannel(j, a, portsFreight{}, true)
		in := newChannel(j, b, portsFreight{}, false)
		return AllocResult{Input: in, Output: out}, nil
	}
	if len(tokens) >= 2 && tokens[0] == "acquire" && tokens[1] == "socket" {
		kind, err := port.Identify(p.FD)
		if err != nil {
			return AllocResult{}, err
		}
		prt := port.New(p.FD, kind, port.DirectionInput, port.DirectionOutput)
		ch := newChannel(j, prt, portsFreight{}, false)
		return AllocResult{Input: ch}, nil
	}
	return AllocResult{}, fmt.Errorf("junction: rallocate ports: unsupported tokens %v", tokens)
}

func (j *Junction) rallocateDatagrams(tokens []string, p AllocParams) (AllocResult, error) {
	if len(tokens) == 0 {
		return AllocResult{}, fmt.Errorf("junction: rallocate datagrams: missing address family")
	}
	var net string
	switch tokens[0] {
	case "ip4":
		net = "udp4"
	case "ip6":
		net = "udp6"
	default:
		return AllocResult{}, fmt.Errorf("junction: rallocate datagrams: unknown family %q", tokens[0])
	}
	prt, err := port.ListenPacket(net, p.listenAddr())
	if err != nil {
		return AllocResult{}, err
	}
	in := newDatagramsChannel(j, prt, false)
	out := newDatagramsChannel(j, prt, true)
	return AllocResult{Input: in, Output: out}, nil
}

func newDatagramsChannel(j *Junction, prt *port.Port, output bool) *Channel {
	fr := &datagramsFreight{}
	c := newChannel(j, prt, fr, output)
	fr.ch = c.inner
	return c
}

func hasToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}
