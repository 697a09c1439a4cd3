package indicator

import (
	"github.com/smallbiznis/threatintel/internal/indicator/repository"
	"github.com/smallbiznis/threatintel/internal/indicator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("indicator.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
