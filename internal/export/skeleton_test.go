package export

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/lmesh/pkg/formats"
	"github.com/Faultbox/lmesh/pkg/math"
)

func armBones() []Bone {
	return []Bone{
		{Name: "root", Parent: -1, Bind: math.Identity()},
		{Name: "arm", Parent: 0, Bind: math.Translate(0, 1, 0)},
	}
}

// waveClip raises and twists the arm a little more every frame.
func waveClip(frames int) AnimationClip {
	clip := AnimationClip{Name: "wave", FrameRate: 30, Flags: formats.AnimLoop}
	for f := 0; f < frames; f++ {
		arm := IdentityTransform()
		arm.Translation = math.Vec3{Y: 1 + float32(f)}
		arm.Rotation = math.QuatFromAxisAngle(math.Vec3{Z: 1}, 0.3*float32(f))
		clip.Frames = append(clip.Frames, []Transform{IdentityTransform(), arm})
	}
	return clip
}

func TestCanonical(t *testing.T) {
	in := Transform{
		Translation: math.Vec3{X: 1, Y: 2, Z: 3},
		Rotation:    math.Quat{X: 0, Y: 0, Z: 0, W: 2},
		Scale:       math.Vec3{X: 1.00001, Y: 1, Z: 0.5},
	}
	got := Canonical(in)

	assert.Equal(t, in.Translation, got.Translation)
	assert.Equal(t, float32(-1), got.Rotation.W)
	assert.LessOrEqual(t, got.Rotation.W, float32(0))
	assert.Equal(t, float32(65537)/65536, got.Scale.X)
	assert.Equal(t, float32(1), got.Scale.Y)
	assert.Equal(t, float32(0.5), got.Scale.Z)

	flipped := in
	flipped.Rotation = in.Rotation.Neg()
	assert.Equal(t, got, Canonical(flipped), "q and -q canonicalize equally")
}

func TestQuantizeSkeleton_Joints(t *testing.T) {
	bones := []Bone{
		{Name: "root", Parent: -1, Bind: math.Translate(2, 0, 0)},
		{Name: "leg", Parent: 0, Bind: math.Translate(2, 3, 0)},
	}
	sk, err := QuantizeSkeleton(bones, nil)
	require.NoError(t, err)
	require.Len(t, sk.Joints, 2)

	root, leg := sk.Joints[0], sk.Joints[1]
	assert.Equal(t, -1, root.Parent)
	assert.Equal(t, math.Vec3{X: 2}, root.Local.Translation)
	assert.Equal(t, 0, leg.Parent)
	assert.InDelta(t, 0, leg.Local.Translation.X, 1e-6)
	assert.InDelta(t, 3, leg.Local.Translation.Y, 1e-6)
	assert.InDelta(t, -3, leg.Inverse.Translation.Y, 1e-6)
	assert.LessOrEqual(t, leg.Local.Rotation.W, float32(0))
	assert.LessOrEqual(t, leg.Inverse.Rotation.W, float32(0))
	assert.Equal(t, math.Vec3{X: 1, Y: 1, Z: 1}, leg.Local.Scale)

	assert.Zero(t, sk.NumFrames)
	assert.Zero(t, sk.FrameChannels)
	assert.Empty(t, sk.Frames)
	for _, c := range sk.Channels {
		assert.Equal(t, ChannelInfo{}, c)
	}
}

func TestQuantizeSkeleton_Channels(t *testing.T) {
	sk, err := QuantizeSkeleton(armBones(), []AnimationClip{waveClip(4)})
	require.NoError(t, err)

	assert.Equal(t, uint32(0), sk.Channels[0].Mask, "static root has no animated channels")
	wantMask := uint32(1<<formats.ChanTY | 1<<formats.ChanQZ | 1<<formats.ChanQW)
	assert.Equal(t, wantMask, sk.Channels[1].Mask)
	assert.Equal(t, 3, sk.FrameChannels)
	assert.Equal(t, 4, sk.NumFrames)
	assert.Len(t, sk.Frames, 4*3)

	arm := sk.Channels[1]
	assert.InDelta(t, 1, arm.Offset[formats.ChanTY], 1e-6)
	assert.InDelta(t, 3.0/0xFFFF, arm.Scale[formats.ChanTY], 1e-9)
	assert.Zero(t, arm.Scale[formats.ChanTX])
	assert.Equal(t, float32(1), arm.Offset[formats.ChanSX])

	pose := sk.Pose(1)
	assert.Equal(t, int32(0), pose.Parent)
	assert.Equal(t, wantMask, pose.Mask)
}

func TestQuantizeSkeleton_RoundTrip(t *testing.T) {
	clip := waveClip(6)
	clip.Frames[2][0].Scale = math.Vec3{X: 1.5, Y: 1, Z: 0.25}
	clip.Frames[4][0].Translation = math.Vec3{X: -7, Y: 0.125, Z: 40}
	sk, err := QuantizeSkeleton(armBones(), []AnimationClip{clip, waveClip(3)})
	require.NoError(t, err)

	k := 0
	for _, c := range sk.Clips {
		for f, frame := range c.Frames {
			for b, tr := range frame {
				info := sk.Channels[b]
				for ch, want := range channels(tr) {
					got := info.Offset[ch]
					if info.Mask&(1<<ch) != 0 {
						got = info.Dequantize(ch, sk.Frames[k])
						k++
					}
					tol := float64(info.Scale[ch])/2 + 1e-5
					assert.InDelta(t, want, got, tol, "clip %s frame %d bone %d channel %d", c.Name, f, b, ch)
				}
			}
		}
	}
	assert.Equal(t, len(sk.Frames), k)
}

func TestQuantizeSkeleton_FastPath(t *testing.T) {
	clip := AnimationClip{Name: "tumble"}
	for f := 0; f < 3; f++ {
		ff := float32(f)
		tr := Transform{
			Translation: math.Vec3{X: ff, Y: 2 * ff, Z: -ff},
			Rotation:    math.Quat{X: 0.1 * ff, Y: 0.2 - 0.05*ff, Z: 0.3 * ff, W: -1}.Normalize(),
			Scale:       math.Vec3{X: 1, Y: 1 + ff, Z: 1},
		}
		clip.Frames = append(clip.Frames, []Transform{tr})
	}
	bones := []Bone{{Name: "body", Parent: -1, Bind: math.Identity()}}

	sk, err := QuantizeSkeleton(bones, []AnimationClip{clip})
	require.NoError(t, err)

	mask := sk.Channels[0].Mask
	assert.Equal(t, uint32(fullRotTrans), mask&fullRotTrans)
	assert.Equal(t, uint32(1<<formats.ChanSY), mask&^uint32(fullRotTrans))
	assert.Equal(t, 8, sk.FrameChannels)
	assert.Equal(t, uint16(0), sk.Frames[0], "minimum quantizes to 0")
	assert.Equal(t, uint16(0xFFFF), sk.Frames[2*8], "maximum quantizes to 65535")
}

func TestQuantizeSkeleton_Errors(t *testing.T) {
	tooMany := make([]Bone, MaxBones+1)
	for i := range tooMany {
		tooMany[i] = Bone{Name: string(rune('a'+i%26)) + string(rune('0'+i/26)), Parent: i - 1, Bind: math.Identity()}
	}
	short := waveClip(2)
	short.Frames[1] = short.Frames[1][:1]

	tests := []struct {
		name  string
		bones []Bone
		clips []AnimationClip
		want  error
	}{
		{"too many bones", tooMany, nil, ErrTooManyBones},
		{"parent after child", []Bone{{Name: "a", Parent: 1}, {Name: "b", Parent: -1}}, nil, ErrBadParent},
		{"self parent", []Bone{{Name: "a", Parent: 0}}, nil, ErrBadParent},
		{"duplicate", []Bone{{Name: "a", Parent: -1}, {Name: "a", Parent: 0}}, nil, ErrDuplicateBone},
		{"short frame", armBones(), []AnimationClip{short}, ErrFrameBoneCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := QuantizeSkeleton(tt.bones, tt.clips)
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestQuantizeSkeleton_MaxBones(t *testing.T) {
	bones := make([]Bone, MaxBones)
	for i := range bones {
		bones[i] = Bone{Name: "bone" + string(rune('A'+i%26)) + string(rune('A'+i/26)), Parent: -1, Bind: math.Identity()}
	}
	_, err := QuantizeSkeleton(bones, nil)
	assert.NoError(t, err)
}

func TestChannelInfo_QuantizeClamps(t *testing.T) {
	c := ChannelInfo{Mask: 1}
	c.Offset[0] = 0
	c.Scale[0] = 1.0 / 0xFFFF

	assert.Equal(t, uint16(0), c.quantize(0, -5))
	assert.Equal(t, uint16(0xFFFF), c.quantize(0, 5))
	assert.Equal(t, uint16(0x8000), c.quantize(0, float32(0x8000)/0xFFFF))
	assert.False(t, math32.IsNaN(c.Dequantize(0, 0xFFFF)))
}
