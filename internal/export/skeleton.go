package export

import (
	gomath "math"

	"github.com/chewxy/math32"

	"github.com/Faultbox/lmesh/pkg/formats"
	"github.com/Faultbox/lmesh/pkg/math"
)

// MinChannelRange is the smallest value range that makes a channel animated.
const MinChannelRange = 1e-10

// fullRotTrans is the mask of all translation and rotation channels.
const fullRotTrans = 0x7F

// JointData is a bone's local bind transform and its inverse, both in
// canonical form.
type JointData struct {
	Name    string
	Parent  int
	Local   Transform
	Inverse Transform
}

// ChannelInfo is the per-bone dequantization of pose channels.
type ChannelInfo struct {
	Mask   uint32
	Offset [formats.NumChannels]float32
	Scale  [formats.NumChannels]float32
}

// Active returns how many channels are stored per frame.
func (c ChannelInfo) Active() int {
	n := 0
	for i := 0; i < formats.NumChannels; i++ {
		if c.Mask&(1<<i) != 0 {
			n++
		}
	}
	return n
}

// Skeleton is a quantized skeleton with its animation frames.
type Skeleton struct {
	Bones    []Bone
	Joints   []JointData
	Channels []ChannelInfo
	// Clips hold canonicalized samples.
	Clips []AnimationClip
	// FrameChannels is the number of uint16 values stored per frame.
	FrameChannels int
	NumFrames     int
	// Frames holds the packed channel values of every frame of every clip.
	Frames []uint16
}

// Canonical normalizes the rotation so that W <= 0 and rounds the scale to
// 1/65536. Two transforms that describe the same pose canonicalize equally.
func Canonical(t Transform) Transform {
	q := t.Rotation.Normalize()
	if q.W > 0 {
		q = q.Neg()
	}
	return Transform{
		Translation: t.Translation,
		Rotation:    q,
		Scale: math.Vec3{
			X: roundScale(t.Scale.X),
			Y: roundScale(t.Scale.Y),
			Z: roundScale(t.Scale.Z),
		},
	}
}

func roundScale(s float32) float32 {
	return math32.Round(s*0x10000) / 0x10000
}

// decompose splits a matrix into a canonical transform.
func decompose(m math.Mat4) Transform {
	t, r, s := m.Decompose()
	return Canonical(Transform{Translation: t, Rotation: r, Scale: s})
}

func channels(t Transform) [formats.NumChannels]float32 {
	return [formats.NumChannels]float32{
		t.Translation.X, t.Translation.Y, t.Translation.Z,
		t.Rotation.X, t.Rotation.Y, t.Rotation.Z, t.Rotation.W,
		t.Scale.X, t.Scale.Y, t.Scale.Z,
	}
}

// ValidateSkeleton checks bone count, ordering and names.
func ValidateSkeleton(bones []Bone) error {
	if len(bones) > MaxBones {
		return inputErrorf("skeleton", ErrTooManyBones, "%d bones", len(bones))
	}
	seen := make(map[string]bool, len(bones))
	for i, b := range bones {
		if b.Parent < -1 || b.Parent >= i {
			return inputErrorf("skeleton", ErrBadParent, "bone %q (%d) has parent %d", b.Name, i, b.Parent)
		}
		if seen[b.Name] {
			return inputErrorf("skeleton", ErrDuplicateBone, "%q", b.Name)
		}
		seen[b.Name] = true
	}
	return nil
}

// QuantizeSkeleton computes local bind transforms, per-channel ranges over
// all clips, and the packed 16-bit frame data.
func QuantizeSkeleton(bones []Bone, clips []AnimationClip) (*Skeleton, error) {
	if err := ValidateSkeleton(bones); err != nil {
		return nil, err
	}
	for _, clip := range clips {
		for f, frame := range clip.Frames {
			if len(frame) != len(bones) {
				return nil, inputErrorf("animation "+clip.Name, ErrFrameBoneCount,
					"frame %d has %d transforms for %d bones", f, len(frame), len(bones))
			}
		}
	}

	sk := &Skeleton{
		Bones:    bones,
		Joints:   make([]JointData, len(bones)),
		Channels: make([]ChannelInfo, len(bones)),
		Clips:    make([]AnimationClip, len(clips)),
	}

	for i, b := range bones {
		local := b.Bind
		if b.Parent >= 0 {
			local = bones[b.Parent].Bind.Inverse().Mul(b.Bind)
		}
		sk.Joints[i] = JointData{
			Name:    b.Name,
			Parent:  b.Parent,
			Local:   decompose(local),
			Inverse: decompose(local.Inverse()),
		}
	}

	for ci, clip := range clips {
		canon := clip
		canon.Frames = make([][]Transform, len(clip.Frames))
		for f, frame := range clip.Frames {
			canon.Frames[f] = make([]Transform, len(frame))
			for b, t := range frame {
				canon.Frames[f][b] = Canonical(t)
			}
		}
		sk.Clips[ci] = canon
		sk.NumFrames += len(clip.Frames)
	}

	sk.computeChannels()
	for _, c := range sk.Channels {
		sk.FrameChannels += c.Active()
	}
	sk.Frames = make([]uint16, 0, sk.NumFrames*sk.FrameChannels)
	for _, clip := range sk.Clips {
		for _, frame := range clip.Frames {
			for b, t := range frame {
				sk.Frames = sk.Channels[b].encode(sk.Frames, channels(t))
			}
		}
	}
	return sk, nil
}

// computeChannels finds each bone's channel ranges across every frame.
func (sk *Skeleton) computeChannels() {
	lo := make([][formats.NumChannels]float32, len(sk.Bones))
	hi := make([][formats.NumChannels]float32, len(sk.Bones))
	for b := range sk.Bones {
		for c := 0; c < formats.NumChannels; c++ {
			lo[b][c] = math32.Inf(1)
			hi[b][c] = math32.Inf(-1)
		}
	}
	for _, clip := range sk.Clips {
		for _, frame := range clip.Frames {
			for b, t := range frame {
				for c, v := range channels(t) {
					lo[b][c] = math32.Min(lo[b][c], v)
					hi[b][c] = math32.Max(hi[b][c], v)
				}
			}
		}
	}

	for b := range sk.Channels {
		info := &sk.Channels[b]
		for c := 0; c < formats.NumChannels; c++ {
			if sk.NumFrames == 0 {
				continue
			}
			info.Offset[c] = lo[b][c]
			if span := hi[b][c] - lo[b][c]; span >= MinChannelRange {
				info.Mask |= 1 << c
				info.Scale[c] = span / 0xFFFF
			}
		}
	}
}

// encode appends the quantized active channels of one bone sample.
func (c *ChannelInfo) encode(dst []uint16, values [formats.NumChannels]float32) []uint16 {
	if c.Mask&fullRotTrans == fullRotTrans {
		for i := 0; i < 7; i++ {
			dst = append(dst, c.quantize(i, values[i]))
		}
	} else {
		for i := 0; i < 7; i++ {
			if c.Mask&(1<<i) != 0 {
				dst = append(dst, c.quantize(i, values[i]))
			}
		}
	}
	for i := 7; i < formats.NumChannels; i++ {
		if c.Mask&(1<<i) != 0 {
			dst = append(dst, c.quantize(i, values[i]))
		}
	}
	return dst
}

func (c *ChannelInfo) quantize(ch int, v float32) uint16 {
	q := gomath.Round((float64(v) - float64(c.Offset[ch])) / float64(c.Scale[ch]))
	return uint16(gomath.Max(0, gomath.Min(0xFFFF, q)))
}

// Dequantize returns the channel value a packed value decodes to.
func (c *ChannelInfo) Dequantize(ch int, q uint16) float32 {
	return c.Offset[ch] + float32(q)*c.Scale[ch]
}

// Pose returns the pose record of bone b.
func (sk *Skeleton) Pose(b int) formats.Pose {
	c := sk.Channels[b]
	return formats.Pose{
		Parent:        int32(sk.Bones[b].Parent),
		Mask:          c.Mask,
		ChannelOffset: c.Offset,
		ChannelScale:  c.Scale,
	}
}

// WorldBind returns every bone's world-space rest matrix.
func (sk *Skeleton) WorldBind() []math.Mat4 {
	out := make([]math.Mat4, len(sk.Bones))
	for i, b := range sk.Bones {
		out[i] = b.Bind
	}
	return out
}
