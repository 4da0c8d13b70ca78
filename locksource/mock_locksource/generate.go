package mock_locksource

//go:generate -command mockgen go run go.uber.org/mock/mockgen -destination=./mock.go github.com/conda-incubator/condacore/locksource ContextLock
