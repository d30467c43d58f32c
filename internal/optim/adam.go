package optim

import (
	"math"

	"classifier-forge/internal/model"
)

// adam applies the Adam update rule with bias-corrected first and
// second moment estimates, keyed by parameter name.
type adam struct {
	cfg  Config
	step int
	m    map[string][]float64
	v    map[string][]float64
}

func (o *adam) Update(params, grads *model.ParamSet, lr float64) (*model.ParamSet, error) {
	if err := checkPair(params, grads); err != nil {
		return nil, err
	}
	o.step++
	c1 := 1 - math.Pow(o.cfg.Beta1, float64(o.step))
	c2 := 1 - math.Pow(o.cfg.Beta2, float64(o.step))

	next := params.Clone()
	for _, name := range next.Names() {
		p := next.Get(name).Data()
		g := grads.Get(name).Data()
		m1, ok := o.m[name]
		if !ok {
			m1 = make([]float64, len(p))
			o.m[name] = m1
		}
		m2, ok := o.v[name]
		if !ok {
			m2 = make([]float64, len(p))
			o.v[name] = m2
		}
		for i := range p {
			m1[i] = o.cfg.Beta1*m1[i] + (1-o.cfg.Beta1)*g[i]
			m2[i] = o.cfg.Beta2*m2[i] + (1-o.cfg.Beta2)*g[i]*g[i]
			mHat := m1[i] / c1
			vHat := m2[i] / c2
			p[i] -= lr * mHat / (math.Sqrt(vHat) + o.cfg.Epsilon)
		}
	}
	return next, nil
}
