package malware

import (
	"github.com/smallbiznis/threatintel/internal/malware/repository"
	"github.com/smallbiznis/threatintel/internal/malware/service"
	"go.uber.org/fx"
)

var Module = fx.Module("malware.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
