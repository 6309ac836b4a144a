package playback

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdStop
	cmdPause
	cmdResume
	cmdStatus
	cmdList
)

func (k commandKind) String() string {
	switch k {
	case cmdPlay:
		return "play"
	case cmdStop:
		return "stop"
	case cmdPause:
		return "pause"
	case cmdResume:
		return "resume"
	case cmdStatus:
		return "status"
	case cmdList:
		return "list"
	default:
		return "unknown"
	}
}

// command is one request to the manager goroutine.
// reply is buffered so the manager never blocks on a departed caller.
type command struct {
	kind   commandKind
	handle Handle
	buf    []byte
	reply  chan result
}

type result struct {
	handle Handle
	status Status
	list   []Status
	err    error
}

func newCommand(kind commandKind, handle Handle, buf []byte) command {
	return command{
		kind:   kind,
		handle: handle,
		buf:    buf,
		reply:  make(chan result, 1),
	}
}
