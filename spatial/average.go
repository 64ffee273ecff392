package spatial

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// defaultAverageIterations is the fixed iteration count spec.md §4.1 notes
// as "sufficient in practice" for the dominant-eigenvector power iteration.
const defaultAverageIterations = 5

// WeightedAverage blends quats (with matching per-contributor weights) into
// a single rotation by power-iterating the dominant eigenvector of the
// accumulator matrix A = Σ wᵢ qᵢ qᵢᵀ, seeded from the previous frame's
// rotation (spec.md §4.1). With zero contributors it returns seed
// normalized; with exactly one it returns that contributor directly
// (the iteration is degenerate in that case).
func WeightedAverage(quats []mgl64.Quat, weights []float64, seed mgl64.Quat) mgl64.Quat {
	switch len(quats) {
	case 0:
		return seed.Normalize()
	case 1:
		return QuatAbs(quats[0].Normalize())
	}

	accum := mat.NewDense(4, 4, nil)
	col := mat.NewVecDense(4, nil)
	for i, q := range quats {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		if w < 0 {
			w = 0
		}
		arr := quatToArray(QuatAbs(q.Normalize()))
		for r := 0; r < 4; r++ {
			col.SetVec(r, arr[r])
		}
		var outer mat.Dense
		outer.Mul(col, col.T())
		outer.Scale(w, &outer)
		accum.Add(accum, &outer)
	}

	v := mat.NewVecDense(4, nil)
	seedArr := quatToArray(seed.Normalize())
	for r := 0; r < 4; r++ {
		v.SetVec(r, seedArr[r])
	}

	for i := 0; i < defaultAverageIterations; i++ {
		var next mat.VecDense
		next.MulVec(accum, v)
		norm := mat.Norm(&next, 2)
		if norm < 1e-15 {
			break
		}
		next.ScaleVec(1/norm, &next)
		v = &next
	}

	var arr [4]float64
	for r := 0; r < 4; r++ {
		arr[r] = v.AtVec(r)
	}
	return QuatAbs(arrayToQuat(arr).Normalize())
}

// quatToArray packs q in (x, y, z, w) order, matching the accumulator
// convention; the order only needs to be consistent between pack/unpack.
func quatToArray(q mgl64.Quat) [4]float64 {
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}

func arrayToQuat(a [4]float64) mgl64.Quat {
	return mgl64.Quat{W: a[3], V: mgl64.Vec3{a[0], a[1], a[2]}}
}
