// Package config provides configuration management for the trainer.
//
// Settings are loaded from an optional YAML file and then overridden by
// environment variables. Each attribute remembers where its value came
// from so that "trainerctl configuration show" can report it.
//
// # Configuration Sources
//
//   - $TRAINER_CONFIG_PATH/trainer.yml (default /etc/medcattrainer)
//   - Environment variables (take precedence)
//
// # Key Configuration Options
//
//   - MAX_MEDCAT_MODELS: models kept in memory per cache
//   - MEDCAT_CONFIG_FILE: overrides applied to loaded CDB configs
//   - MAX_DATASET_SIZE: row limit for dataset uploads
//   - UNIQUE_DOC_NAMES_IN_DATASETS: reject duplicate document names
//   - MEDIA_ROOT: storage for datasets, models and reports
//   - RESUBMIT_ALL_ON_STARTUP: retrain from validated documents on boot
//   - TRAINER_LOG_LEVEL: debug, info, warn or error
//
// DATABASE_URL and TRAINER_SECRET_KEY are read directly from the
// environment by the packages that need them.
package config
