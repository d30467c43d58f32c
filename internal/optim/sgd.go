package optim

import "classifier-forge/internal/model"

// sgd applies stochastic gradient descent, optionally with momentum.
type sgd struct {
	momentum float64
	velocity map[string][]float64
}

func (o *sgd) Update(params, grads *model.ParamSet, lr float64) (*model.ParamSet, error) {
	if err := checkPair(params, grads); err != nil {
		return nil, err
	}
	next := params.Clone()
	for _, name := range next.Names() {
		p := next.Get(name).Data()
		g := grads.Get(name).Data()
		if o.momentum == 0 {
			for i := range p {
				p[i] -= lr * g[i]
			}
			continue
		}
		vel, ok := o.velocity[name]
		if !ok {
			vel = make([]float64, len(p))
			o.velocity[name] = vel
		}
		for i := range p {
			vel[i] = o.momentum*vel[i] + g[i]
			p[i] -= lr * vel[i]
		}
	}
	return next, nil
}
