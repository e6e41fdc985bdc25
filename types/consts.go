package types

// floatCmpEpsilon bounds the tolerance used when comparing lengths and norms
// against zero/one (vector normalization, quaternion renormalization).
const floatCmpEpsilon float32 = 1e-6
