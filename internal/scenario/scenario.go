// Package scenario holds canned programs demonstrating callback ordering,
// each with the console output it must produce.
package scenario

import (
	"context"
	"fmt"
	"io"
	"sort"

	deferloop "github.com/joeycumines/go-deferloop"
)

// Scenario is a named program plus its expected console output.
type Scenario struct {
	Name        string
	Description string
	// Expected is the exact sequence of console lines.
	Expected []string
	program  func(s *deferloop.Scheduler, console *deferloop.Console) error
}

// Run executes the scenario on a new scheduler configured by opts, mirroring
// console lines to out (which may be nil), and returns the recorded lines.
func (x *Scenario) Run(ctx context.Context, out io.Writer, opts ...deferloop.Option) ([]string, error) {
	s, err := deferloop.New(opts...)
	if err != nil {
		return nil, err
	}
	console := deferloop.NewConsole(out)
	err = s.Run(ctx, func(s *deferloop.Scheduler) error {
		return x.program(s, console)
	})
	return console.Lines(), err
}

// Verify compares lines to Expected, returning a descriptive error for the
// first difference.
func (x *Scenario) Verify(lines []string) error {
	for i := 0; i < len(lines) || i < len(x.Expected); i++ {
		switch {
		case i >= len(lines):
			return fmt.Errorf("scenario %s: missing line %d: want %q", x.Name, i+1, x.Expected[i])
		case i >= len(x.Expected):
			return fmt.Errorf("scenario %s: unexpected line %d: %q", x.Name, i+1, lines[i])
		case lines[i] != x.Expected[i]:
			return fmt.Errorf("scenario %s: line %d: got %q, want %q", x.Name, i+1, lines[i], x.Expected[i])
		}
	}
	return nil
}

var registry = map[string]*Scenario{}

func register(x *Scenario) {
	if _, ok := registry[x.Name]; ok {
		panic("scenario: duplicate name " + x.Name)
	}
	registry[x.Name] = x
}

// Names returns the registered scenario names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named scenario.
func Lookup(name string) (*Scenario, bool) {
	x, ok := registry[name]
	return x, ok
}

// logLine returns a callback that logs line to console.
func logLine(console *deferloop.Console, line string) deferloop.Callback {
	return deferloop.Bind(console, func(c *deferloop.Console) error {
		c.Log(line)
		return nil
	})
}

func init() {
	register(&Scenario{
		Name:        "ordering",
		Description: "one callback per tier, enqueued lowest priority first",
		Expected: []string{
			"nextTick",
			"promise-then",
			"timeout",
			"setImmediate",
		},
		program: func(s *deferloop.Scheduler, console *deferloop.Console) error {
			if err := s.Enqueue(deferloop.TierB, logLine(console, "promise-then")); err != nil {
				return err
			}
			if err := s.Enqueue(deferloop.TierA, logLine(console, "nextTick")); err != nil {
				return err
			}
			if err := s.Enqueue(deferloop.TierCheck, logLine(console, "setImmediate")); err != nil {
				return err
			}
			_, err := s.EnqueueTimer(logLine(console, "timeout"), 0, false)
			return err
		},
	})

	register(&Scenario{
		Name:        "event-loop",
		Description: "synchronous code, then promise microtasks and queueMicrotask, then a zero-delay timeout",
		Expected: []string{
			"start",
			"10 10",
			"end",
			"promise-1",
			"promise-2",
			"1",
			"timeout",
		},
		program: func(s *deferloop.Scheduler, console *deferloop.Console) error {
			js := deferloop.NewJS(s)

			console.Log("start")

			js.SetTimeout(func() {
				console.Log("timeout")
			}, 0)

			js.Then(func() {
				console.Log("promise-1")
			})

			js.Then(func() {
				console.Log("promise-2")
			})

			// default parameter evaluated from an earlier one
			func(y int) {
				x := y
				console.Log(x, y)
			}(10)

			js.QueueMicrotask(func() {
				console.Log("1")
			})

			console.Log("end")
			return nil
		},
	})

	register(&Scenario{
		Name:        "engine-event-loop",
		Description: "every tier, including an interval that clears itself and a microtask that schedules a timeout",
		Expected: []string{
			"script-start",
			"default-params: 10 10",
			"Promise constructor",
			"asyncFn-before-await",
			"script-end",
			"nextTick",
			"promise-then",
			"queueMicrotask",
			"asyncFn-after-await",
			"setTimeout-0ms",
			"setInterval-tick",
			"Promise microtask that schedules a macrotask",
			"setImmediate",
		},
		program: func(s *deferloop.Scheduler, console *deferloop.Console) error {
			js := deferloop.NewJS(s)

			console.Log("script-start")

			func(y int) {
				x := y
				console.Log("default-params:", x, y)
			}(10)

			js.NextTick(func() {
				console.Log("nextTick")
			})

			js.Then(func() {
				console.Log("promise-then")
			})

			// a promise executor runs synchronously
			console.Log("Promise constructor")

			js.Then(func() {
				js.SetTimeout(func() {
					console.Log("Promise microtask that schedules a macrotask")
				}, 0)
			})

			js.QueueMicrotask(func() {
				console.Log("queueMicrotask")
			})

			js.Await(
				func() { console.Log("asyncFn-before-await") },
				func() { console.Log("asyncFn-after-await") },
			)

			js.SetTimeout(func() {
				console.Log("setTimeout-0ms")
			}, 0)

			var interval deferloop.TimerHandle
			interval = js.SetInterval(func() {
				console.Log("setInterval-tick")
				js.ClearInterval(interval)
			}, 0)

			js.SetImmediate(func() {
				console.Log("setImmediate")
			})

			console.Log("script-end")
			return nil
		},
	})
}
