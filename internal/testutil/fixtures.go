package testutil

import (
	"time"

	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
)

// FraudCategorical is the categorical input of the fraud classifier, in
// encoding order.
var FraudCategorical = []string{"ProductCD", "P_emaildomain", "R_emaildomain", "card4", "M1", "M2", "M3"}

const FraudNumeric = "TransactionAmt"

// Column indices of the encoded fraud matrix used by FraudPredictor.
const (
	colProductW        = 4
	colPEmailLive      = 9
	colREmailMissing   = 11
	colTransactionAmt  = 28
	FraudFeatureWidth  = 29
	FraudArtifactName  = "fraud_classifier"
	FraudExampleAmount = 495.0
)

func FraudEncoder() *model.OneHotEncoder {
	enc, err := model.NewOneHotEncoder(FraudCategorical, [][]string{
		{"C", "H", "R", "S", "W"},
		{model.MissingMarker, "anonymous.com", "gmail.com", "hotmail.com", "live.com", "yahoo.com"},
		{model.MissingMarker, "anonymous.com", "gmail.com", "hotmail.com"},
		{"american express", "discover", "mastercard", "visa"},
		{model.MissingMarker, "F", "T"},
		{model.MissingMarker, "F", "T"},
		{model.MissingMarker, "F", "T"},
	})
	if err != nil {
		panic(err)
	}
	return enc
}

func FraudPipeline() *model.Pipeline {
	p, err := model.NewPipeline(FraudEncoder(), []string{FraudNumeric})
	if err != nil {
		panic(err)
	}
	return p
}

func leaf(id int, v float64) model.TreeNode {
	return model.TreeNode{NodeID: id, Leaf: &v}
}

func split(id, feature int, cond float64, yes, no int) model.TreeNode {
	return model.TreeNode{NodeID: id, Split: feature, SplitCondition: cond, Yes: yes, No: no, Missing: yes}
}

// FraudPredictor flags large live.com transactions and W-product purchases
// without a recipient email domain.
func FraudPredictor() *model.TreeEnsemble {
	t, err := model.NewTreeEnsemble(FraudFeatureWidth, 0.5, []model.Tree{
		{Nodes: []model.TreeNode{
			split(0, colTransactionAmt, 300, 1, 2),
			leaf(1, -1.2),
			split(2, colPEmailLive, 0.5, 3, 4),
			leaf(3, 0.4),
			leaf(4, 1.6),
		}},
		{Nodes: []model.TreeNode{
			split(0, colProductW, 0.5, 1, 2),
			leaf(1, -0.3),
			split(2, colREmailMissing, 0.5, 3, 4),
			leaf(3, -0.2),
			leaf(4, 0.5),
		}},
	})
	if err != nil {
		panic(err)
	}
	return t
}

func FraudArtifact(tag string) *domain.Artifact {
	p := FraudPipeline()
	return &domain.Artifact{
		Name:          FraudArtifactName,
		Tag:           tag,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Labels:        map[string]string{"owner": "risk-team"},
		Metadata:      map[string]any{"auc": 0.91},
		Signature:     domain.Signature{Method: domain.DefaultMethod, Batchable: true},
		Predictor:     FraudPredictor(),
		Preprocessor:  p,
		CustomObjects: domain.CustomObjects{FeatureNames: p.Columns()},
	}
}

// FraudExampleRecord is the documented walkthrough request; it scores 1.
func FraudExampleRecord() model.Record {
	return model.Record{
		"isFraud":        0.0,
		"TransactionAmt": FraudExampleAmount,
		"ProductCD":      "W",
		"card4":          "visa",
		"P_emaildomain":  "live.com",
		"R_emaildomain":  nil,
		"M1":             "T",
		"M2":             "T",
		"M3":             "T",
	}
}

// FraudExampleJSON is FraudExampleRecord as the HTTP body of the walkthrough.
const FraudExampleJSON = `[{"isFraud":0,"TransactionAmt":495.0,"ProductCD":"W","card4":"visa","P_emaildomain":"live.com","R_emaildomain":null,"M1":"T","M2":"T","M3":"T"}]`

// FraudLowRiskRecord scores 0.
func FraudLowRiskRecord() model.Record {
	return model.Record{
		"TransactionAmt": 25.0,
		"ProductCD":      "C",
		"card4":          "mastercard",
		"P_emaildomain":  "gmail.com",
		"R_emaildomain":  "gmail.com",
		"M1":             "F",
		"M2":             "F",
		"M3":             "F",
	}
}
