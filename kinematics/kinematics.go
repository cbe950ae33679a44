// Package kinematics implements the capability-set kinematics boundary
// described in the design notes: a small forward/inverse/type table
// injected into MotionLoop at init, replacing the original's function
// pointer table (cncmotion/_examples/original_source/src/emc/kinematics
// equivalents) and the teacher's Kinematics interface
// (kinematics/kinematics.go before this rewrite).
package kinematics

import (
	"errors"

	"cncmotion/motion"
)

// ErrSingular is returned by Inverse when the requested pose has no
// solution (or an ambiguous one) for the current kinematics.
var ErrSingular = errors.New("kinematics: inverse singular or out of reach")

// Kinematics is the capability set injected into MotionLoop at init
// (design notes §9): forward maps joint positions to a Cartesian pose,
// inverse maps a pose back to joint positions subject to flags carried
// alongside the pose (e.g. preferred solution branch for non-identity
// machines), and Type names the kinematics for status reporting.
type Kinematics interface {
	Forward(joints []float64) (motion.Pose, error)
	Inverse(pose motion.Pose, flagsIn uint32) (joints []float64, flagsOut uint32, err error)
	Type() string
	NumJoints() int
}

// Identity is the default kinematics (§1 Non-goals: "only identity and a
// forward-kinematics callback contract are required"). Joint i maps
// directly to the i-th Cartesian axis in canonical order
// (x,y,z,a,b,c,u,v,w).
type Identity struct {
	n int
}

// NewIdentity returns an identity kinematics over the first n canonical
// axes. n must be in [1, motion.MaxJoints].
func NewIdentity(n int) (*Identity, error) {
	if n < 1 || n > motion.MaxJoints {
		return nil, errors.New("kinematics: joint count out of range")
	}
	return &Identity{n: n}, nil
}

func (k *Identity) Forward(joints []float64) (motion.Pose, error) {
	if len(joints) != k.n {
		return motion.Pose{}, errors.New("kinematics: joint count mismatch")
	}
	var a [9]float64
	copy(a[:], joints)
	return motion.PoseFromArray(a), nil
}

func (k *Identity) Inverse(pose motion.Pose, flagsIn uint32) ([]float64, uint32, error) {
	a := pose.Array()
	joints := make([]float64, k.n)
	copy(joints, a[:k.n])
	return joints, flagsIn, nil
}

func (k *Identity) Type() string { return "identity" }

func (k *Identity) NumJoints() int { return k.n }

// ForwardCallback adapts a plain function into the Kinematics interface
// for machines whose forward map is all that's known (§1's
// "forward-kinematics callback contract"); Inverse is unsupported and
// always fails with ErrSingular.
type ForwardCallback struct {
	N  int
	Fn func(joints []float64) (motion.Pose, error)
}

func (k *ForwardCallback) Forward(joints []float64) (motion.Pose, error) {
	return k.Fn(joints)
}

func (k *ForwardCallback) Inverse(motion.Pose, uint32) ([]float64, uint32, error) {
	return nil, 0, ErrSingular
}

func (k *ForwardCallback) Type() string { return "forward-callback" }

func (k *ForwardCallback) NumJoints() int { return k.N }
