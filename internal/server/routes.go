package server

import (
	"context"

	"gamification/internal/service"

	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationSubmitEvent       = "/gamification.v1.Gamification/SubmitEvent"
	OperationSubmitBatch       = "/gamification.v1.Gamification/SubmitBatch"
	OperationSpendPoints       = "/gamification.v1.Gamification/SpendPoints"
	OperationRecoverStreak     = "/gamification.v1.Gamification/RecoverStreak"
	OperationGetSummary        = "/gamification.v1.Gamification/GetSummary"
	OperationListBadges        = "/gamification.v1.Gamification/ListBadges"
	OperationPointsHistory     = "/gamification.v1.Gamification/PointsHistory"
	OperationXPHistory         = "/gamification.v1.Gamification/XPHistory"
	OperationLeaderboard       = "/gamification.v1.Gamification/Leaderboard"
	OperationListLevels        = "/gamification.v1.Gamification/ListLevels"
	OperationUpdateSetting     = "/gamification.v1.Admin/UpdateSetting"
	OperationSettingHistory    = "/gamification.v1.Admin/SettingHistory"
	OperationRegisterDeveloper = "/gamification.v1.Admin/RegisterDeveloper"
	OperationChangeTier        = "/gamification.v1.Admin/ChangeTier"
	OperationResetMonthlyCycle = "/gamification.v1.Admin/ResetMonthlyCycle"
	OperationAwardPoints       = "/gamification.v1.Admin/AwardPoints"
)

// registerGamificationHTTPServer 注册全部 REST 路由
func registerGamificationHTTPServer(s *http.Server, svc *service.GamificationService) {
	r := s.Route("/")
	r.POST("/v1/events", handler(OperationSubmitEvent, bindBody, svc.SubmitEvent))
	r.POST("/v1/events/batch", handler(OperationSubmitBatch, bindBody, svc.SubmitBatch))
	r.POST("/v1/points/spend", handler(OperationSpendPoints, bindBody, svc.SpendPoints))
	r.POST("/v1/streak/recover", handler(OperationRecoverStreak, bindNone, svc.RecoverStreak))
	r.GET("/v1/me/summary", handler(OperationGetSummary, bindNone, svc.GetSummary))
	r.GET("/v1/me/badges", handler(OperationListBadges, bindNone, svc.ListBadges))
	r.GET("/v1/me/points/history", handler(OperationPointsHistory, bindQuery, svc.PointsHistory))
	r.GET("/v1/me/xp/history", handler(OperationXPHistory, bindQuery, svc.XPHistory))
	r.GET("/v1/leaderboard", handler(OperationLeaderboard, bindQuery, svc.Leaderboard))
	r.GET("/v1/levels", handler(OperationListLevels, bindNone, svc.ListLevels))

	r.PUT("/v1/admin/settings/{key}", handler(OperationUpdateSetting, bindBodyAndVars, svc.UpdateSetting))
	r.GET("/v1/admin/settings/{key}", handler(OperationSettingHistory, bindVars, svc.SettingHistory))
	r.POST("/v1/admin/developers", handler(OperationRegisterDeveloper, bindBody, svc.RegisterDeveloper))
	r.PUT("/v1/admin/developers/{id}/tier", handler(OperationChangeTier, bindBodyAndVars, svc.ChangeTier))
	r.POST("/v1/admin/developers/{id}/monthly-reset", handler(OperationResetMonthlyCycle, bindVars, svc.ResetMonthlyCycle))
	r.POST("/v1/admin/developers/{id}/points", handler(OperationAwardPoints, bindBodyAndVars, svc.AwardPoints))
}

type binder func(ctx http.Context, in interface{}) error

func bindNone(http.Context, interface{}) error { return nil }

func bindBody(ctx http.Context, in interface{}) error { return ctx.Bind(in) }

func bindQuery(ctx http.Context, in interface{}) error { return ctx.BindQuery(in) }

func bindVars(ctx http.Context, in interface{}) error { return ctx.BindVars(in) }

// bindBodyAndVars 路径参数覆盖 body 中的同名字段
func bindBodyAndVars(ctx http.Context, in interface{}) error {
	if err := ctx.Bind(in); err != nil {
		return err
	}
	return ctx.BindVars(in)
}

// handler 与 protoc-gen-go-http 生成的处理函数结构一致：绑定参数、设置 operation、经过中间件链后调用服务
func handler[Req any, Reply any](operation string, bind binder, call func(context.Context, *Req) (*Reply, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in Req
		if err := bind(ctx, &in); err != nil {
			return err
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*Req))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*Reply))
	}
}
