package gcode

import (
	"io"

	"cncmotion/interpadapter"
	"cncmotion/motion"
)

// Interpreter is a reference implementation of the interpadapter.Source
// boundary contract (§1: the interpreter itself is out of scope for this
// module; this is the minimal producer exercising that boundary). It
// reads a fixed program of lines and translates G/M-codes into
// interpadapter.Call values one at a time, in the dispatch style of the
// teacher's gcode.Interpreter (executeG/executeM switch-per-code) but
// emitting canonical calls instead of driving a planner directly.
type Interpreter struct {
	parser *Parser
	lines  []string
	idx    int
	lineID int

	endpoint     motion.Pose
	absolute     bool
	extrudeAbs   bool
	feedRate     float64
	spindleSpeed float64
	spindleOn    bool
}

// NewInterpreter creates an interpreter over a fixed program of lines.
func NewInterpreter(lines []string) *Interpreter {
	return &Interpreter{
		parser:   NewParser(),
		lines:    lines,
		absolute: true,
	}
}

// Next implements interpadapter.Source.
func (in *Interpreter) Next() (*interpadapter.Call, error) {
	for in.idx < len(in.lines) {
		line := in.lines[in.idx]
		in.idx++
		in.lineID++

		cmd, err := in.parser.ParseLine(line)
		if err != nil {
			return nil, err
		}
		if cmd == nil || cmd.Comment != "" && cmd.Type == 0 {
			continue
		}

		call := in.translate(cmd)
		if call != nil {
			call.LineID = in.lineID
			return call, nil
		}
	}
	return nil, io.EOF
}

func (in *Interpreter) translate(cmd *Command) *interpadapter.Call {
	switch cmd.Type {
	case 'G':
		return in.translateG(cmd)
	case 'M':
		return in.translateM(cmd)
	}
	return nil
}

func (in *Interpreter) translateG(cmd *Command) *interpadapter.Call {
	switch cmd.Number {
	case 0: // rapid traverse
		return in.linearCall(cmd, interpadapter.CallStraightTraverse)
	case 1: // feed move
		return in.linearCall(cmd, interpadapter.CallStraightFeed)
	case 2, 3: // arc, CW (2) / CCW (3)
		return in.arcCall(cmd, cmd.Number == 3)
	case 4: // dwell
		return &interpadapter.Call{Kind: interpadapter.CallDwell, DwellSeconds: cmd.GetParameter('P', 0)}
	case 33: // spindle-synced feed per revolution
		return in.rigidOrSyncCall(cmd)
	case 38: // straight probe (G38.2 etc, subtype ignored at this layer)
		return in.probeCall(cmd)
	case 76: // rigid tapping cycle
		return in.rigidOrSyncCall(cmd)
	case 90:
		in.absolute = true
	case 91:
		in.absolute = false
	case 92:
		return in.setOriginCall(cmd)
	}
	return nil
}

func (in *Interpreter) translateM(cmd *Command) *interpadapter.Call {
	switch cmd.Number {
	case 3, 4: // spindle on, CW/CCW
		in.spindleOn = true
		if cmd.HasParameter('S') {
			in.spindleSpeed = cmd.GetParameter('S', in.spindleSpeed)
			return &interpadapter.Call{Kind: interpadapter.CallSetSpindleSpeed, SpindleSpeed: in.spindleSpeed}
		}
	case 5: // spindle off
		in.spindleOn = false
	}
	return nil
}

func (in *Interpreter) target(cmd *Command) motion.Pose {
	target := in.endpoint
	apply := func(has bool, cur, val float64, set func(float64)) {
		if !has {
			return
		}
		if in.absolute {
			set(val)
		} else {
			set(cur + val)
		}
	}
	apply(cmd.HasParameter('X'), in.endpoint.X, cmd.GetParameter('X', 0), func(v float64) { target.X = v })
	apply(cmd.HasParameter('Y'), in.endpoint.Y, cmd.GetParameter('Y', 0), func(v float64) { target.Y = v })
	apply(cmd.HasParameter('Z'), in.endpoint.Z, cmd.GetParameter('Z', 0), func(v float64) { target.Z = v })
	apply(cmd.HasParameter('A'), in.endpoint.A, cmd.GetParameter('A', 0), func(v float64) { target.A = v })
	apply(cmd.HasParameter('B'), in.endpoint.B, cmd.GetParameter('B', 0), func(v float64) { target.B = v })
	apply(cmd.HasParameter('C'), in.endpoint.C, cmd.GetParameter('C', 0), func(v float64) { target.C = v })
	return target
}

func (in *Interpreter) linearCall(cmd *Command, kind interpadapter.CallKind) *interpadapter.Call {
	if cmd.HasParameter('F') {
		in.feedRate = cmd.GetParameter('F', 0) / 60.0 // mm/min -> mm/s
	}
	target := in.target(cmd)
	call := &interpadapter.Call{
		Kind: kind,
		End:  target,
		Vel:  in.feedRate,
	}
	in.endpoint = target
	return call
}

func (in *Interpreter) arcCall(cmd *Command, ccw bool) *interpadapter.Call {
	target := in.target(cmd)
	i := cmd.GetParameter('I', 0)
	j := cmd.GetParameter('J', 0)
	center := in.endpoint
	center.X += i
	center.Y += j

	turn := 1
	if !ccw {
		turn = -1
	}
	if cmd.HasParameter('P') {
		turn *= int(cmd.GetParameter('P', 1))
	}

	call := &interpadapter.Call{
		Kind:      interpadapter.CallArcFeed,
		End:       target,
		Center:    center,
		TurnCount: turn,
		Vel:       in.feedRate,
	}
	in.endpoint = target
	return call
}

func (in *Interpreter) probeCall(cmd *Command) *interpadapter.Call {
	target := in.target(cmd)
	return &interpadapter.Call{
		Kind: interpadapter.CallStraightProbe,
		End:  target,
		Vel:  in.feedRate,
	}
}

func (in *Interpreter) rigidOrSyncCall(cmd *Command) *interpadapter.Call {
	target := in.target(cmd)
	call := &interpadapter.Call{
		Kind:       interpadapter.CallRigidTap,
		End:        target,
		Vel:        in.feedRate,
		FeedPerRev: cmd.GetParameter('K', 0),
	}
	in.endpoint = target
	return call
}

func (in *Interpreter) setOriginCall(cmd *Command) *interpadapter.Call {
	offset := motion.Pose{}
	if cmd.HasParameter('X') {
		offset.X = cmd.GetParameter('X', 0)
		in.endpoint.X = offset.X
	}
	if cmd.HasParameter('Y') {
		offset.Y = cmd.GetParameter('Y', 0)
		in.endpoint.Y = offset.Y
	}
	if cmd.HasParameter('Z') {
		offset.Z = cmd.GetParameter('Z', 0)
		in.endpoint.Z = offset.Z
	}
	return &interpadapter.Call{Kind: interpadapter.CallSetOriginOffsets, OriginOffset: offset}
}
