package mad3pg

import (
	"fmt"

	"github.com/neardws/aovrl/network"
	"github.com/neardws/aovrl/solver"
	"github.com/neardws/aovrl/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// agentCore holds the online, target and auxiliary networks of one
// agent group (the shared vehicle agent or the edge agent), together
// with the graphs and virtual machines that run them.
//
// Each concern lives on its own computational graph, following the
// target-network layout of deep Q learning: the critic training graph
// owns the online observation and critic networks, the policy
// training graph owns the online policy, and the target and auxiliary
// graphs hold copies that are refreshed by value from the online
// networks. Values cross between graphs as input-node constants,
// which detaches them from gradient computation.
type agentCore struct {
	name string

	rows      int
	obsDim    int
	actionDim int
	jointDim  int
	embedding int
	atoms     int

	// Critic training graph: online observation net + online critic,
	// cross-entropy loss against projected categorical targets
	criticGraph    *G.ExprGraph
	criticVM       G.VM
	obsNet         network.NeuralNet
	criticNet      network.NeuralNet
	criticObsIn    *G.Node
	criticActionIn *G.Node
	criticTargetIn *G.Node
	criticLossVal  G.Value
	criticSolver   *solver.Solver

	// Policy training graph: online policy, DPG loss against the
	// dqda-shifted action targets
	policyGraph    *G.ExprGraph
	policyVM       G.VM
	policyNet      network.NeuralNet
	policyEmbedIn  *G.Node
	policyTargetIn *G.Node
	policyLossVal  G.Value
	policySolver   *solver.Solver

	// Forward-only copy of the online policy, used to compute the
	// policy's actions for the counterfactual joint action
	fwdPolicyGraph   *G.ExprGraph
	fwdPolicyVM      G.VM
	fwdPolicy        network.NeuralNet
	fwdPolicyEmbedIn *G.Node

	// Copy of the online critic with the joint action as a
	// differentiable input, yielding the clipped gradient of the
	// expected value with respect to the joint action
	dqdaGraph    *G.ExprGraph
	dqdaVM       G.VM
	dqdaNet      network.NeuralNet
	dqdaEmbedIn  *G.Node
	dqdaActionIn *G.Node
	dqdaVal      G.Value

	// Target observation and policy networks
	targetGraph  *G.ExprGraph
	targetVM     G.VM
	targetObsNet network.NeuralNet
	targetPolicy network.NeuralNet
	targetObsIn  *G.Node

	// Target critic network
	targetCriticGraph    *G.ExprGraph
	targetCriticVM       G.VM
	targetCritic         network.NeuralNet
	targetCriticEmbedIn  *G.Node
	targetCriticActionIn *G.Node
	targetCriticProbsVal G.Value
}

// newAgentCore builds the graphs of one agent group. The rows
// parameter fixes the number of batch rows flowing through every
// graph of the group.
func newAgentCore(name string, rows, obsDim, actionDim, jointDim int,
	conf Config, z []float64) (*agentCore, error) {
	init := conf.Init.InitWFn()
	atoms := conf.Atoms

	core := &agentCore{
		name:      name,
		rows:      rows,
		obsDim:    obsDim,
		actionDim: actionDim,
		jointDim:  jointDim,
		embedding: conf.ObservationEmbedding,
		atoms:     atoms,
	}

	var err error
	core.policySolver, core.criticSolver, err = conf.newSolvers()
	if err != nil {
		return nil, fmt.Errorf("newagentcore: %v", err)
	}

	if err := core.buildCriticGraph(conf, init); err != nil {
		return nil, fmt.Errorf("newagentcore: %v", err)
	}
	if err := core.buildPolicyGraph(conf, init); err != nil {
		return nil, fmt.Errorf("newagentcore: %v", err)
	}
	if err := core.buildFwdPolicyGraph(); err != nil {
		return nil, fmt.Errorf("newagentcore: %v", err)
	}
	if err := core.buildDQDAGraph(conf, z); err != nil {
		return nil, fmt.Errorf("newagentcore: %v", err)
	}
	if err := core.buildTargetGraphs(); err != nil {
		return nil, fmt.Errorf("newagentcore: %v", err)
	}

	return core, nil
}

// buildCriticGraph builds the critic training graph
func (a *agentCore) buildCriticGraph(conf Config, init G.InitWFn) error {
	g := G.NewGraph()
	a.criticGraph = g
	a.criticObsIn = inputMatrix(g, a.rows, a.obsDim, a.name+"CriticObs")
	a.criticActionIn = inputMatrix(g, a.rows, a.jointDim,
		a.name+"CriticAction")
	a.criticTargetIn = inputMatrix(g, a.rows, a.atoms,
		a.name+"CriticTarget")

	var err error
	a.obsNet, err = newObservationNet(a.criticObsIn, g,
		conf.ObservationHidden, a.embedding, init, a.name)
	if err != nil {
		return err
	}
	a.criticNet, err = newCriticNet(a.obsNet.Prediction(), a.criticActionIn,
		g, conf.CriticHidden, a.atoms, init, a.name)
	if err != nil {
		return err
	}

	// Cross entropy between the projected target distribution and the
	// online critic's predicted distribution
	logits := a.criticNet.Prediction()
	logZ := op.LogSumExp(logits, 1)
	logSoftmax := G.Must(G.BroadcastSub(logits, logZ, nil, []byte{1}))
	crossEntropy := G.Must(G.HadamardProd(a.criticTargetIn, logSoftmax))
	rowLoss := G.Must(G.Sum(crossEntropy, 1))
	loss := G.Must(G.Neg(G.Must(G.Mean(rowLoss))))
	G.Read(loss, &a.criticLossVal)

	learnables := append(G.Nodes{}, a.obsNet.Learnables()...)
	learnables = append(learnables, a.criticNet.Learnables()...)
	if _, err := G.Grad(loss, learnables...); err != nil {
		return fmt.Errorf("buildcriticgraph: could not compute gradient: %v",
			err)
	}

	a.criticVM = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	return nil
}

// buildPolicyGraph builds the policy training graph
func (a *agentCore) buildPolicyGraph(conf Config, init G.InitWFn) error {
	g := G.NewGraph()
	a.policyGraph = g
	a.policyEmbedIn = inputMatrix(g, a.rows, a.embedding,
		a.name+"PolicyEmbed")
	a.policyTargetIn = inputMatrix(g, a.rows, a.actionDim,
		a.name+"PolicyTarget")

	var err error
	a.policyNet, err = newPolicyNet(a.policyEmbedIn, g, conf.PolicyHidden,
		a.actionDim, init, a.name)
	if err != nil {
		return err
	}

	// 0.5 * ||a - y||^2 with y = stop_gradient(a) + clipped dqda, so
	// the gradient with respect to the action is exactly -dqda
	half := G.NewScalar(g, tensor.Float64, G.WithValue(0.5),
		G.WithName(a.name+"Half"))
	diff := G.Must(G.Sub(a.policyNet.Prediction(), a.policyTargetIn))
	rowLoss := G.Must(G.Sum(G.Must(G.Square(diff)), 1))
	loss := G.Must(G.Mul(half, G.Must(G.Mean(rowLoss))))
	G.Read(loss, &a.policyLossVal)

	learnables := a.policyNet.Learnables()
	if _, err := G.Grad(loss, learnables...); err != nil {
		return fmt.Errorf("buildpolicygraph: could not compute gradient: %v",
			err)
	}

	a.policyVM = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	return nil
}

// buildFwdPolicyGraph builds the forward-only copy of the online
// policy
func (a *agentCore) buildFwdPolicyGraph() error {
	g := G.NewGraph()
	a.fwdPolicyGraph = g
	a.fwdPolicyEmbedIn = inputMatrix(g, a.rows, a.embedding,
		a.name+"FwdPolicyEmbed")

	var err error
	a.fwdPolicy, err = a.policyNet.CloneWithInputTo(1,
		[]*G.Node{a.fwdPolicyEmbedIn}, g)
	if err != nil {
		return fmt.Errorf("buildfwdpolicygraph: %v", err)
	}

	a.fwdPolicyVM = G.NewTapeMachine(g)
	return nil
}

// buildDQDAGraph builds the graph computing the clipped gradient of
// the critic's expected value with respect to the joint action
func (a *agentCore) buildDQDAGraph(conf Config, z []float64) error {
	g := G.NewGraph()
	a.dqdaGraph = g
	a.dqdaEmbedIn = inputMatrix(g, a.rows, a.embedding, a.name+"DQDAEmbed")
	a.dqdaActionIn = inputMatrix(g, a.rows, a.jointDim, a.name+"DQDAAction")

	var err error
	a.dqdaNet, err = a.criticNet.CloneWithInputTo(1,
		[]*G.Node{a.dqdaEmbedIn, a.dqdaActionIn}, g)
	if err != nil {
		return fmt.Errorf("builddqdagraph: %v", err)
	}

	probs := G.Must(G.SoftMax(a.dqdaNet.Prediction(), 1))
	supportTensor := tensor.New(tensor.WithShape(a.atoms),
		tensor.WithBacking(append([]float64{}, z...)))
	supportNode := G.NewVector(g, tensor.Float64, G.WithShape(a.atoms),
		G.WithName(a.name+"Support"), G.WithValue(supportTensor))
	q := G.Must(G.Mul(probs, supportNode))
	qSum := G.Must(G.Sum(q))

	grads, err := G.Grad(qSum, a.dqdaActionIn)
	if err != nil {
		return fmt.Errorf("builddqdagraph: could not compute action "+
			"gradient: %v", err)
	}
	dqda := grads[0]
	if conf.DQDAClipping > 0 {
		dqda, err = op.Clip(dqda, -conf.DQDAClipping, conf.DQDAClipping)
		if err != nil {
			return fmt.Errorf("builddqdagraph: could not clip action "+
				"gradient: %v", err)
		}
	}
	G.Read(dqda, &a.dqdaVal)

	a.dqdaVM = G.NewTapeMachine(g)
	return nil
}

// buildTargetGraphs builds the target observation/policy graph and
// the target critic graph
func (a *agentCore) buildTargetGraphs() error {
	g := G.NewGraph()
	a.targetGraph = g
	a.targetObsIn = inputMatrix(g, a.rows, a.obsDim, a.name+"TargetObs")

	var err error
	a.targetObsNet, err = a.obsNet.CloneWithInputTo(1,
		[]*G.Node{a.targetObsIn}, g)
	if err != nil {
		return fmt.Errorf("buildtargetgraphs: %v", err)
	}
	a.targetPolicy, err = a.policyNet.CloneWithInputTo(1,
		[]*G.Node{a.targetObsNet.Prediction()}, g)
	if err != nil {
		return fmt.Errorf("buildtargetgraphs: %v", err)
	}
	a.targetVM = G.NewTapeMachine(g)

	cg := G.NewGraph()
	a.targetCriticGraph = cg
	a.targetCriticEmbedIn = inputMatrix(cg, a.rows, a.embedding,
		a.name+"TargetCriticEmbed")
	a.targetCriticActionIn = inputMatrix(cg, a.rows, a.jointDim,
		a.name+"TargetCriticAction")

	a.targetCritic, err = a.criticNet.CloneWithInputTo(1,
		[]*G.Node{a.targetCriticEmbedIn, a.targetCriticActionIn}, cg)
	if err != nil {
		return fmt.Errorf("buildtargetgraphs: %v", err)
	}
	probs := G.Must(G.SoftMax(a.targetCritic.Prediction(), 1))
	G.Read(probs, &a.targetCriticProbsVal)
	a.targetCriticVM = G.NewTapeMachine(cg)

	return nil
}

// syncTargets hard-copies the online weights into the target
// networks, observation net first, then critic, then policy
func (a *agentCore) syncTargets() error {
	if err := a.targetObsNet.Set(a.obsNet); err != nil {
		return fmt.Errorf("synctargets: could not sync observation "+
			"network: %v", err)
	}
	if err := a.targetCritic.Set(a.criticNet); err != nil {
		return fmt.Errorf("synctargets: could not sync critic network: %v",
			err)
	}
	if err := a.targetPolicy.Set(a.policyNet); err != nil {
		return fmt.Errorf("synctargets: could not sync policy network: %v",
			err)
	}
	return nil
}

// targetPass runs the target observation and policy networks on the
// next observations, returning the observation embeddings and the
// target actions
func (a *agentCore) targetPass(nextObs []float64) ([]float64, []float64,
	error) {
	if err := letMatrix(a.targetObsIn, a.rows, a.obsDim, nextObs); err != nil {
		return nil, nil, fmt.Errorf("targetpass: %v", err)
	}
	if err := a.targetVM.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("targetpass: %v", err)
	}
	embed := valueData(a.targetObsNet.Output())
	actions := valueData(a.targetPolicy.Output())
	a.targetVM.Reset()
	return embed, actions, nil
}

// targetDistribution runs the target critic on the target observation
// embeddings and joint target actions, returning the predicted value
// distribution per row
func (a *agentCore) targetDistribution(embed,
	jointActions []float64) ([]float64, error) {
	err := letMatrix(a.targetCriticEmbedIn, a.rows, a.embedding, embed)
	if err != nil {
		return nil, fmt.Errorf("targetdistribution: %v", err)
	}
	err = letMatrix(a.targetCriticActionIn, a.rows, a.jointDim, jointActions)
	if err != nil {
		return nil, fmt.Errorf("targetdistribution: %v", err)
	}
	if err := a.targetCriticVM.RunAll(); err != nil {
		return nil, fmt.Errorf("targetdistribution: %v", err)
	}
	probs := valueData(a.targetCriticProbsVal)
	a.targetCriticVM.Reset()
	return probs, nil
}

// criticUpdate runs one gradient step of the online observation and
// critic networks against the projected categorical targets,
// returning the critic loss
func (a *agentCore) criticUpdate(obs, jointActions, targetProbs []float64,
	replicator Replicator, maxNorm float64) (float64, error) {
	if err := letMatrix(a.criticObsIn, a.rows, a.obsDim, obs); err != nil {
		return 0, fmt.Errorf("criticupdate: %v", err)
	}
	err := letMatrix(a.criticActionIn, a.rows, a.jointDim, jointActions)
	if err != nil {
		return 0, fmt.Errorf("criticupdate: %v", err)
	}
	err = letMatrix(a.criticTargetIn, a.rows, a.atoms, targetProbs)
	if err != nil {
		return 0, fmt.Errorf("criticupdate: %v", err)
	}

	if err := a.criticVM.RunAll(); err != nil {
		return 0, fmt.Errorf("criticupdate: %v", err)
	}
	loss := a.criticLossVal.Data().(float64)

	grads := gradientsOf(a.obsNet, a.criticNet)
	reduced, err := replicator.ReduceMeanGrads([][]*tensor.Dense{grads})
	if err != nil {
		return 0, fmt.Errorf("criticupdate: %v", err)
	}
	if err := clipByGlobalNorm(reduced, maxNorm); err != nil {
		return 0, fmt.Errorf("criticupdate: %v", err)
	}
	err = applyGradients(reduced, a.criticSolver, a.obsNet, a.criticNet)
	if err != nil {
		return 0, fmt.Errorf("criticupdate: %v", err)
	}

	a.criticVM.Reset()
	return loss, nil
}

// onlineActions runs the online policy on the target observation
// embeddings, returning the policy's actions
func (a *agentCore) onlineActions(embed []float64) ([]float64, error) {
	if err := a.fwdPolicy.Set(a.policyNet); err != nil {
		return nil, fmt.Errorf("onlineactions: %v", err)
	}
	err := letMatrix(a.fwdPolicyEmbedIn, a.rows, a.embedding, embed)
	if err != nil {
		return nil, fmt.Errorf("onlineactions: %v", err)
	}
	if err := a.fwdPolicyVM.RunAll(); err != nil {
		return nil, fmt.Errorf("onlineactions: %v", err)
	}
	actions := valueData(a.fwdPolicy.Output())
	a.fwdPolicyVM.Reset()
	return actions, nil
}

// actionGradients runs the online critic copy on the counterfactual
// joint actions, returning the clipped gradient of the expected value
// with respect to the joint action, one row per input row
func (a *agentCore) actionGradients(embed,
	jointActions []float64) ([]float64, error) {
	if err := a.dqdaNet.Set(a.criticNet); err != nil {
		return nil, fmt.Errorf("actiongradients: %v", err)
	}
	err := letMatrix(a.dqdaEmbedIn, a.rows, a.embedding, embed)
	if err != nil {
		return nil, fmt.Errorf("actiongradients: %v", err)
	}
	err = letMatrix(a.dqdaActionIn, a.rows, a.jointDim, jointActions)
	if err != nil {
		return nil, fmt.Errorf("actiongradients: %v", err)
	}
	if err := a.dqdaVM.RunAll(); err != nil {
		return nil, fmt.Errorf("actiongradients: %v", err)
	}
	dqda := valueData(a.dqdaVal)
	a.dqdaVM.Reset()
	return dqda, nil
}

// policyUpdate runs one gradient step of the online policy against
// the dqda-shifted action targets, returning the policy loss
func (a *agentCore) policyUpdate(embed, actionTargets []float64,
	replicator Replicator, maxNorm float64) (float64, error) {
	err := letMatrix(a.policyEmbedIn, a.rows, a.embedding, embed)
	if err != nil {
		return 0, fmt.Errorf("policyupdate: %v", err)
	}
	err = letMatrix(a.policyTargetIn, a.rows, a.actionDim, actionTargets)
	if err != nil {
		return 0, fmt.Errorf("policyupdate: %v", err)
	}

	if err := a.policyVM.RunAll(); err != nil {
		return 0, fmt.Errorf("policyupdate: %v", err)
	}
	loss := a.policyLossVal.Data().(float64)

	grads := gradientsOf(a.policyNet)
	reduced, err := replicator.ReduceMeanGrads([][]*tensor.Dense{grads})
	if err != nil {
		return 0, fmt.Errorf("policyupdate: %v", err)
	}
	if err := clipByGlobalNorm(reduced, maxNorm); err != nil {
		return 0, fmt.Errorf("policyupdate: %v", err)
	}
	if err := applyGradients(reduced, a.policySolver, a.policyNet); err != nil {
		return 0, fmt.Errorf("policyupdate: %v", err)
	}

	a.policyVM.Reset()
	return loss, nil
}

// letMatrix sets the value of a rows×cols input node
func letMatrix(node *G.Node, rows, cols int, data []float64) error {
	if len(data) != rows*cols {
		return fmt.Errorf("letmatrix: invalid data size for %v "+
			"\n\twant(%v)\n\thave(%v)", node.Name(), rows*cols, len(data))
	}
	backing := make([]float64, len(data))
	copy(backing, data)
	return G.Let(node, tensor.New(tensor.WithShape(rows, cols),
		tensor.WithBacking(backing)))
}

// valueData returns a copy of the float64 backing of a value
func valueData(v G.Value) []float64 {
	data := v.Data().([]float64)
	out := make([]float64, len(data))
	copy(out, data)
	return out
}

// applyGradients copies the reduced gradients back into the networks'
// gradient slots and applies one solver step. Nil gradients are
// skipped, leaving their parameters untouched.
func applyGradients(reduced []*tensor.Dense, solv *solver.Solver,
	nets ...network.NeuralNet) error {
	i := 0
	var model []G.ValueGrad
	for _, net := range nets {
		for _, learnable := range net.Learnables() {
			if i >= len(reduced) {
				return fmt.Errorf("applygradients: misaligned gradients "+
					"\n\twant(>%v)\n\thave(%v)", i, len(reduced))
			}
			if reduced[i] == nil {
				i++
				continue
			}

			gradVal, err := learnable.Grad()
			if err != nil {
				return fmt.Errorf("applygradients: no gradient slot for "+
					"%v: %v", learnable.Name(), err)
			}
			dst := gradVal.(*tensor.Dense)
			if dst != reduced[i] {
				copy(dst.Data().([]float64), reduced[i].Data().([]float64))
			}
			model = append(model, learnable)
			i++
		}
	}
	if len(model) == 0 {
		return nil
	}
	return solv.Step(model)
}
