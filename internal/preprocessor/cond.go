package preprocessor

// condStack tracks nested conditional groups. A frame is either resolved,
// meaning its directives are consumed and only the taken branch survives,
// or kept, meaning its condition could not be decided and its directives
// are passed through.
type condStack struct {
	stack []condFrame
}

type condFrame struct {
	parentActive bool
	taken        bool // a branch of a resolved frame has been selected
	active       bool
	kept         bool
	closed       bool // kept frame whose remaining branches are dead
	line         int
}

func newCondStack() *condStack  { return &condStack{} }
func (c *condStack) Depth() int { return len(c.stack) }

func (c *condStack) Active() bool {
	if len(c.stack) == 0 {
		return true
	}
	return c.stack[len(c.stack)-1].active
}

func (c *condStack) top() *condFrame {
	if len(c.stack) == 0 {
		return nil
	}
	return &c.stack[len(c.stack)-1]
}

// Push opens a resolved group whose condition is cond.
func (c *condStack) Push(cond bool, line int) {
	parent := c.Active()
	c.stack = append(c.stack, condFrame{
		parentActive: parent,
		taken:        cond,
		active:       parent && cond,
		line:         line,
	})
}

// PushKept opens a group whose condition stays in the output.
func (c *condStack) PushKept(line int) {
	parent := c.Active()
	c.stack = append(c.stack, condFrame{
		parentActive: parent,
		active:       parent,
		kept:         true,
		line:         line,
	})
}

// Elif moves a resolved frame to its next branch.
func (c *condStack) Elif(cond bool) {
	top := c.top()
	if top == nil {
		return
	}
	if top.taken {
		top.active = false
		return
	}
	top.active = top.parentActive && cond
	top.taken = cond
}

func (c *condStack) Else() {
	top := c.top()
	if top == nil {
		return
	}
	if top.kept {
		top.active = top.parentActive && !top.closed
		return
	}
	top.active = top.parentActive && !top.taken
	top.taken = true
}

func (c *condStack) Pop() (condFrame, bool) {
	top := c.top()
	if top == nil {
		return condFrame{}, false
	}
	f := *top
	c.stack = c.stack[:len(c.stack)-1]
	return f, true
}

func (c *condStack) UnclosedLine() int {
	if top := c.top(); top != nil {
		return top.line
	}
	return 0
}
