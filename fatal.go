package logfwd

// Critical submits a critical record followed by one record per backtrace frame
func (p *Pipeline) Critical(args ...any) {
	p.Submit(SeverityCritical, appendArgs(nil, args))
	for _, line := range backtrace(1) {
		p.Submit(SeverityCritical, []byte(line))
	}
}

// Assert terminates the process when cond is false.
// Buffered records, the backtrace and the assertion message are written to the local sink first.
func (p *Pipeline) Assert(cond bool, args ...any) {
	if cond {
		return
	}

	p.FlushBuffered()

	for _, line := range backtrace(1) {
		p.notice(SeverityCritical, line)
	}
	msg := []byte("Assertion failed")
	if len(args) > 0 {
		msg = append(msg, ": "...)
		msg = appendArgs(msg, args)
	}
	p.notice(SeverityCritical, string(msg))

	if s := p.getSink(); s != nil {
		_ = s.Sync()
	}
	p.exitFunc(2)
}
