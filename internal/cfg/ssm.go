package cfg

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterGetter is the slice of the SSM client used at startup.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveHawkKey fills c.HawkKey from the SecureString named by
// c.HawkKeySSMParam. A key already set from flags or env is kept and SSM is
// not contacted.
func ResolveHawkKey(ctx context.Context, c *App, getter ParameterGetter) error {
	if c.HawkKey != "" || c.HawkKeySSMParam == "" {
		return nil
	}
	out, err := getter.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.HawkKeySSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get ssm parameter %s: %w", c.HawkKeySSMParam, err)
	}
	if out == nil || out.Parameter == nil {
		return fmt.Errorf("ssm parameter %s has no value", c.HawkKeySSMParam)
	}
	key := strings.TrimSpace(aws.ToString(out.Parameter.Value))
	if key == "" {
		return fmt.Errorf("ssm parameter %s is empty", c.HawkKeySSMParam)
	}
	c.HawkKey = key
	return nil
}
