package purchase

import (
	"context"

	"custody-workflow-go/internal/supertx"
)

// SupertxExecutor adapts the Supertransaction client to the Executor
// contract: compose a single sponsored transfer step, sign, execute.
type SupertxExecutor struct {
	Client *supertx.Client
}

var _ Executor = (*SupertxExecutor)(nil)

func (e *SupertxExecutor) Transfer(ctx context.Context, params TransferParams) (string, error) {
	composed, err := e.Client.Compose(ctx, supertx.Intent{
		ChainId: params.ChainId,
		From:    params.FromAddress,
		Steps: []supertx.Step{{
			Type:   "transfer",
			Token:  params.CoinType,
			To:     params.ToAddress,
			Amount: params.Amount.String(),
		}},
		// Gas is sponsored by the operator; the user pays nothing.
		GasPayment: supertx.GasPayment{
			Sponsor:        params.FromAddress,
			MaxUserPayment: "0",
		},
	})
	if err != nil {
		return "", err
	}

	executed, err := e.Client.Execute(ctx, composed.Payload, e.Client.Sign(composed.Payload))
	if err != nil {
		return "", err
	}
	return executed.TxHash, nil
}
