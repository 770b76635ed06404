package instance

import (
	"github.com/tariron/saasodoo-sub008/internal/instance/domain"
	"github.com/tariron/saasodoo-sub008/internal/instance/repository"
	"github.com/tariron/saasodoo-sub008/internal/instance/service"
	"github.com/tariron/saasodoo-sub008/internal/tasks"
	tasksdomain "github.com/tariron/saasodoo-sub008/internal/tasks/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("instance",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(fx.Annotate(
		taskHandlers,
		fx.ResultTags(`group:"task-handlers,flatten"`),
	)),
)

func taskHandlers(s *service.Service) []tasks.Registration {
	return []tasks.Registration{
		{Type: tasksdomain.TypeProvision, Handler: s.HandleProvision},
		{Type: tasksdomain.TypeStart, Handler: s.HandleStart},
		{Type: tasksdomain.TypeStop, Handler: s.HandleStop},
		{Type: tasksdomain.TypeTeardown, Handler: s.HandleTeardown},
	}
}
