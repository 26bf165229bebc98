package config

const (
	EnvPrefix = "TRACKVAULT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "TRACKVAULT_APP_ENV"
	EnvPort      = "TRACKVAULT_APP_PORT"
	EnvDBDSN     = "TRACKVAULT_DB_DSN"
	EnvDBHost    = "TRACKVAULT_DB_HOST"
	EnvDBUser    = "TRACKVAULT_DB_USER"
	EnvDBName    = "TRACKVAULT_DB_NAME"
	EnvUseSQLite = "TRACKVAULT_USE_SQLITE"
	EnvRedisURL  = "TRACKVAULT_REDIS_URL"

	EnvJWTSecret = "TRACKVAULT_JWT_SECRET"
	EnvJWTIssuer = "TRACKVAULT_JWT_ISSUER"

	EnvPaymentsSuccessProbability = "TRACKVAULT_PAYMENTS_SUCCESS_PROBABILITY"
	EnvPaymentsGatewayMinLatency  = "TRACKVAULT_PAYMENTS_GATEWAY_MIN_LATENCY"
	EnvPaymentsGatewayMaxLatency  = "TRACKVAULT_PAYMENTS_GATEWAY_MAX_LATENCY"
	EnvReceiptsTaxRate            = "TRACKVAULT_RECEIPTS_TAX_RATE"
	EnvReceiptsDiscountRate       = "TRACKVAULT_RECEIPTS_DISCOUNT_RATE"
	EnvOutboundTimeout            = "TRACKVAULT_OUTBOUND_TIMEOUT"
)

var dbEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
