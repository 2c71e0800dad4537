// Package logger provee el logger estructurado del servicio (zap).
//
// Uso típico:
//
//	logger.Init(logger.Config{Env: "prod", Level: "info", ServiceName: "hellolink"})
//	defer logger.Sync()
//
//	log := logger.Named("flow")
//	log.Info("auth_start_ok", logger.ClientID(id), logger.Email(masked))
//
// Los handlers usan logger.From(ctx) para obtener el logger scoped al
// request que inyecta el middleware de logging.
package logger
