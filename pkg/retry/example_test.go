package retry_test

import (
	"context"
	"errors"
	"fmt"

	"retryrelay/pkg/retry"
)

func ExampleWrap() {
	calls := 0
	fetch := func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("temporarily unavailable")
		}
		return "payload", nil
	}

	wrapped, err := retry.Wrap("fetch", fetch, retry.Policy[string]{RetryLimit: 5})
	if err != nil {
		fmt.Println(err)
		return
	}
	res, err := wrapped(context.Background())
	fmt.Println(res, err, calls)
	// Output:
	// payload <nil> 3
}

func ExamplePolicy_checkResolve() {
	versions := []int{1, 2, 3}
	calls := 0
	latest := func(ctx context.Context) (int, error) {
		v := versions[calls]
		calls++
		return v, nil
	}

	res, err := retry.Do(context.Background(), "latest", latest, retry.Policy[int]{
		RetryLimit: 2,
		CheckResolve: func(v int, rd retry.RuntimeData) retry.Verdict {
			if v < 3 {
				return retry.Reject(fmt.Errorf("version %d is outdated", v))
			}
			return retry.Accept()
		},
	})
	fmt.Println(res, err)
	// Output:
	// 3 <nil>
}

func ExamplePolicy_resolveWithLastResult() {
	calls := 0
	quote := func(ctx context.Context) (float64, error) {
		calls++
		return float64(calls) * 1.5, nil
	}

	res, err := retry.Do(context.Background(), "quote", quote, retry.Policy[float64]{
		RetryLimit: 1,
		CheckResolve: func(float64, retry.RuntimeData) retry.Verdict {
			return retry.Reject(errors.New("quote is stale"))
		},
		ResolveWithLastResult: true,
	})
	fmt.Println(res, err)
	// Output:
	// 3 <nil>
}
