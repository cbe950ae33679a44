// Command cncctl is the CLI entrypoint wiring config, kinematics,
// motionloop, stepgen, ringbuf, cmdchan, task, interpadapter, and gcode
// into a single running controller. Grounded on
// host/cmd/gopper-host/main.go's connect-then-interactive-loop shape
// (flag-parsed device selection, bufio.Scanner command loop), upgraded
// per SPEC_FULL.md §11's CLI domain-stack decisions: colored status
// output and a spinner for auto-mode runs, shlex for MDI/CLI tokenizing,
// and pkg/errors for boundary error wrapping.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/theckman/yacspin"

	"cncmotion/cmdchan"
	"cncmotion/config"
	"cncmotion/core"
	"cncmotion/gcode"
	"cncmotion/httpstatus"
	"cncmotion/interpadapter"
	"cncmotion/kinematics"
	"cncmotion/motion"
	"cncmotion/motionloop"
	"cncmotion/ringbuf"
	"cncmotion/stepgen"
	"cncmotion/task"
)

var (
	iniPath     = flag.String("config", "cncmotion.ini", "Path to the INI machine configuration")
	toolTable   = flag.String("tool-table", "", "Path to the tool table file (overrides [EMCIO] TOOL_TABLE)")
	httpAddr    = flag.String("http", ":8090", "Diagnostics HTTP listen address (empty disables it)")
	servoPeriod = flag.Duration("servo-period", time.Millisecond, "Servo tick period")
)

// simGPIO is the host-simulation GPIO driver cncctl runs against when no
// real MCU is attached (host/serialhal.Dial targets real hardware
// instead, selected with -device in a future revision).
type simGPIO struct{ pins map[core.GPIOPin]bool }

func newSimGPIO() *simGPIO { return &simGPIO{pins: make(map[core.GPIOPin]bool)} }

func (g *simGPIO) ConfigureOutput(core.GPIOPin) error        { return nil }
func (g *simGPIO) ConfigureInputPullUp(core.GPIOPin) error   { return nil }
func (g *simGPIO) ConfigureInputPullDown(core.GPIOPin) error { return nil }
func (g *simGPIO) SetPin(p core.GPIOPin, v bool) error       { g.pins[p] = v; return nil }
func (g *simGPIO) GetPin(p core.GPIOPin) (bool, error)       { return g.pins[p], nil }
func (g *simGPIO) ReadPin(p core.GPIOPin) bool               { return g.pins[p] }

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("cncctl: %v", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(*iniPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	n := len(cfg.Axes)
	if n == 0 {
		return errors.New("config declares no [AXIS_n] sections")
	}

	kin, err := kinematics.NewIdentity(n)
	if err != nil {
		return errors.Wrap(err, "build kinematics")
	}

	ring := ringbuf.New(64)
	axisPins := make([]stepgen.AxisPins, n)
	for i := range axisPins {
		axisPins[i] = stepgen.AxisPins{Step: core.GPIOPin(2 * i), Dir: core.GPIOPin(2*i + 1)}
	}
	sg := stepgen.New(ring, axisPins, newSimGPIO(), 1)

	ch := cmdchan.New()
	loop := motionloop.New(n, kin, ch, ring, sg)
	loop.TServoNs = servoPeriod.Nanoseconds()
	for i, axSec := range cfg.Axes {
		loop.Joints[i].Joint = axSec.ToJoint()
		loop.Joints[i].Activate()
		loop.StepsPerUnit[i] = 1000
	}

	fsm := task.New(loop.Traj, ch)
	fsm.State.State = motion.StateOn
	fsm.State.Mode = motion.TaskMDI

	if tt := toolTablePath(cfg, *toolTable); tt != "" {
		watchToolTable(tt, func() {
			fmt.Println(color.YellowString("tool table changed on disk: %s", tt))
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go driveServoLoop(ctx, loop, sg, *servoPeriod)

	if *httpAddr != "" {
		srv := httpstatus.New(loop, 50*time.Millisecond)
		go func() {
			if err := httpstatus.Run(ctx, *httpAddr, srv); err != nil {
				fmt.Fprintln(os.Stderr, color.RedString("httpstatus: %v", err))
			}
		}()
		fmt.Println(color.CyanString("diagnostics: http://%s/status", *httpAddr))
	}

	return interactiveLoop(ctx, fsm)
}

func loadConfig(path string) (*config.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return config.Load(f)
}

func toolTablePath(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	return cfg.EMCIO.ToolTable
}

// watchToolTable fires onChanged whenever path is written, using the same
// fsnotify dependency the teacher's dictionary-cache watcher pulls in,
// repurposed here for the tool table per SPEC_FULL.md's config-reload
// requirement (§7, Config error kind: "non-fatal, reload on next tool
// change" rather than crashing mid-program).
func watchToolTable(path string, onChanged func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return
	}
	go func() {
		defer watcher.Close()
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				onChanged()
			}
		}
	}()
}

// driveServoLoop ticks Stepgen at the FIQ rate and MotionLoop at the
// servo rate, matching §5's two-clock model (Stepgen ticks are meant to
// run far more often than one servo tick; here both run at the same
// period since the host simulation has no separate hardware timer).
func driveServoLoop(ctx context.Context, loop *motionloop.Loop, sg *stepgen.Stepgen, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	dt := period.Seconds()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sg.Tick()
			loop.Tick(dt, motionloop.IOInputs{})
		}
	}
}

// interactiveLoop reads MDI lines (G-code or a handful of control
// commands) until the context is canceled or stdin closes.
func interactiveLoop(ctx context.Context, fsm *task.FSM) error {
	fmt.Println("cncctl - interactive MDI (type 'help' for commands, 'quit' to exit)")
	scanner := bufio.NewScanner(os.Stdin)

	spinner, _ := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[9],
		Suffix:          " running program",
		SuffixAutoColon: true,
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens, err := shlex.Split(line)
		if err != nil || len(tokens) == 0 {
			fmt.Println(color.RedString("parse error: %v", err))
			continue
		}

		switch tokens[0] {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			printHelp()
		case "run":
			if len(tokens) < 2 {
				fmt.Println(color.RedString("usage: run <file.gcode>"))
				continue
			}
			runProgram(fsm, tokens[1], spinner)
		default:
			runMDILine(fsm, line)
		}
	}
}

func printHelp() {
	fmt.Println("  help              - show this help")
	fmt.Println("  run <file>        - execute a G-code program")
	fmt.Println("  <g-code line>     - execute one MDI line immediately")
	fmt.Println("  quit/exit/q       - exit")
}

func runMDILine(fsm *task.FSM, line string) {
	fsm.State.Mode = motion.TaskMDI
	if fsm.Submit(task.CmdMDIExecute) == task.Rejected {
		fmt.Println(color.RedString("MDI rejected in current mode/state"))
		return
	}
	interp := gcode.NewInterpreter([]string{line})
	adapter := interpadapter.New(interp)
	for {
		finished, err := adapter.Pump(fsm)
		if err != nil {
			fmt.Println(color.RedString("interp error: %v", err))
			return
		}
		for {
			drained, err := fsm.DrainOne(true, true)
			if err != nil {
				fmt.Println(color.RedString("drain error: %v", err))
				return
			}
			if !drained {
				break
			}
		}
		if finished {
			return
		}
	}
}

func runProgram(fsm *task.FSM, path string, spinner *yacspin.Spinner) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(color.RedString("read %s: %v", path, err))
		return
	}
	lines := strings.Split(string(data), "\n")

	fsm.State.Mode = motion.TaskAuto
	fsm.State.InterpState = motion.InterpIdle
	if fsm.Submit(task.CmdRun) == task.Rejected {
		fmt.Println(color.RedString("run rejected in current mode/state"))
		return
	}
	fsm.State.InterpState = motion.InterpReading

	if spinner != nil {
		_ = spinner.Start()
		defer spinner.Stop()
	}

	interp := gcode.NewInterpreter(lines)
	adapter := interpadapter.New(interp)
	motionDone, ioDone := true, true
	for {
		finished, err := adapter.Pump(fsm)
		if err != nil {
			fmt.Println(color.RedString("interp error at line: %v", err))
			return
		}
		for {
			drained, err := fsm.DrainOne(motionDone, ioDone)
			if err != nil {
				fmt.Println(color.RedString("drain error: %v", err))
				return
			}
			if !drained {
				break
			}
		}
		if finished && !fsm.Barriered() {
			fsm.State.InterpState = motion.InterpIdle
			fmt.Println(color.GreenString("program complete: %s", path))
			return
		}
	}
}
