package volink

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MixyLabs/volink/pkg/volink/util"
)

type ConfigManager struct {
	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	reloadConsumers []chan bool

	userConfig     *viper.Viper
	internalConfig *viper.Viper

	current Config
}

type Config struct {
	Notifications bool `mapstructure:"notifications"`

	DisableTray bool `mapstructure:"disable_tray"`

	// ForceLink makes startup re-link the saved pair even if it was
	// unlinked on last exit (same as the -link flag)
	ForceLink bool `mapstructure:"force_link"`

	AudioFlyout bool `mapstructure:"audio_flyout"`

	SortLocale string `mapstructure:"sort_locale"`

	VolumeStep int `mapstructure:"volume_step"`
}

// LinkState is the persisted device pairing, written on exit and restored on
// the next launch. Device identities are stored by OS ID rather than by
// ordinal, so the pairing survives devices coming and going.
type LinkState struct {
	MasterDevice string
	SlaveDevice  string
	LinkActive   bool
}

const (
	userConfigFilepath     = "config.yaml"
	internalConfigFilepath = "preferences.yaml"

	userConfigName     = "config"
	internalConfigName = "preferences"

	userConfigPath = "."

	configType = "yaml"

	configKeyNotifications = "notifications"
	configKeyDisableTray   = "disable_tray"
	configKeyForceLink     = "force_link"
	configKeyAudioFlyout   = "audio_flyout"
	configKeySortLocale    = "sort_locale"
	configKeyVolumeStep    = "volume_step"

	prefKeyMasterDevice = "master_device"
	prefKeySlaveDevice  = "slave_device"
	prefKeyLinkActive   = "link_active"

	defaultVolumeStep = 5
)

var internalConfigPath = path.Join(".", logDirectory)

func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*ConfigManager, error) {
	logger = logger.Named("config")

	cc := &ConfigManager{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
	}

	// distinguish between the user-provided config (config.yaml) and the internal config (logs/preferences.yaml)
	userConfig := viper.New()
	userConfig.SetConfigName(userConfigName)
	userConfig.SetConfigType(configType)
	userConfig.AddConfigPath(userConfigPath)

	userConfig.SetDefault(configKeyNotifications, true)
	userConfig.SetDefault(configKeyDisableTray, false)
	userConfig.SetDefault(configKeyForceLink, false)
	userConfig.SetDefault(configKeyAudioFlyout, false)
	userConfig.SetDefault(configKeySortLocale, "")
	userConfig.SetDefault(configKeyVolumeStep, defaultVolumeStep)

	internalConfig := viper.New()
	internalConfig.SetConfigName(internalConfigName)
	internalConfig.SetConfigType(configType)
	internalConfig.AddConfigPath(internalConfigPath)

	cc.userConfig = userConfig
	cc.internalConfig = internalConfig

	logger.Debug("Created config instance")

	return cc, nil
}

func (cc *ConfigManager) Load() error {
	cc.logger.Debugw("Loading config", "path", userConfigFilepath)

	// the user config is optional; the defaults cover everything
	if util.FileExists(userConfigFilepath) {
		if err := cc.userConfig.ReadInConfig(); err != nil {
			cc.logger.Warnw("Viper failed to read user config", "error", err)

			// if the error is yaml-format-related, show a sensible error. otherwise, show 'em to the logs
			if strings.Contains(err.Error(), "yaml:") {
				cc.notifier.Notify("Invalid configuration!",
					fmt.Sprintf("Please make sure %s is in a valid YAML format.", userConfigFilepath))
			} else {
				cc.notifier.Notify("Error loading configuration!", "Please check volink's logs for more details.")
			}

			return fmt.Errorf("read user config: %w", err)
		}
	} else {
		cc.logger.Debugw("No user config file found, using defaults", "path", userConfigFilepath)
	}

	// the internal config doesn't have to exist - it only appears once a
	// device pairing has been saved
	if err := cc.internalConfig.ReadInConfig(); err != nil {
		cc.logger.Debugw("Viper failed to read internal config", "error", err, "reminder", "this is fine")
	}

	// canonize the configuration with viper's helpers
	if err := cc.populateFromVipers(); err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		return fmt.Errorf("populate config fields: %w", err)
	}

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"notifications", cc.current.Notifications,
		"disableTray", cc.current.DisableTray,
		"forceLink", cc.current.ForceLink,
		"audioFlyout", cc.current.AudioFlyout,
		"sortLocale", cc.current.SortLocale,
		"volumeStep", cc.current.VolumeStep)

	return nil
}

// SavedLinkState returns the device pairing stored by the previous run, if
// any. Zero-valued fields mean nothing was ever saved
func (cc *ConfigManager) SavedLinkState() LinkState {
	return LinkState{
		MasterDevice: cc.internalConfig.GetString(prefKeyMasterDevice),
		SlaveDevice:  cc.internalConfig.GetString(prefKeySlaveDevice),
		LinkActive:   cc.internalConfig.GetBool(prefKeyLinkActive),
	}
}

// StoreLinkState persists the given device pairing for the next run
func (cc *ConfigManager) StoreLinkState(state LinkState) error {
	cc.logger.Debugw("Storing link state",
		"master", state.MasterDevice,
		"slave", state.SlaveDevice,
		"linkActive", state.LinkActive)

	if err := util.EnsureDirExists(internalConfigPath); err != nil {
		cc.logger.Warnw("Failed to ensure internal config directory exists", "error", err)
		return fmt.Errorf("ensure internal config dir exists: %w", err)
	}

	cc.internalConfig.Set(prefKeyMasterDevice, state.MasterDevice)
	cc.internalConfig.Set(prefKeySlaveDevice, state.SlaveDevice)
	cc.internalConfig.Set(prefKeyLinkActive, state.LinkActive)

	if err := cc.internalConfig.WriteConfigAs(path.Join(internalConfigPath, internalConfigFilepath)); err != nil {
		cc.logger.Warnw("Failed to write internal config file", "error", err)
		return fmt.Errorf("write internal config file: %w", err)
	}

	return nil
}

// SubscribeToChanges allows external components to receive updates when the config is reloaded
func (cc *ConfigManager) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *ConfigManager) WatchConfigFileChanges() {
	// can't watch a file the user never created
	if !util.FileExists(userConfigFilepath) {
		cc.logger.Debug("No user config file to watch")
		<-cc.stopWatcherChannel
		return
	}

	cc.logger.Debugw("Starting to watch user config file for changes", "path", userConfigFilepath)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&fsnotify.Write == fsnotify.Write {
			now := time.Now()

			// ... check if it's not a duplicate (many editors will write to a file twice)
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
				// and attempt reload if appropriate
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// wait a bit to let the editor actually flush the new file contents to disk
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")

					if cc.current.Notifications {
						cc.notifier.Notify("Configuration reloaded!", "Your changes have been applied.")
					}

					cc.onConfigReloaded()
				}

				// don't forget to update the time
				lastAttemptedReload = now
			}
		}
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *ConfigManager) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true
}

func (cc *ConfigManager) populateFromVipers() error {
	err := cc.userConfig.Unmarshal(&cc.current, func(dConf *mapstructure.DecoderConfig) {
		dConf.WeaklyTypedInput = false
	})
	if err != nil {
		return err
	}

	if cc.current.VolumeStep <= 0 || cc.current.VolumeStep > 100 {
		cc.logger.Warnw("Ignoring invalid volume_step value", "value", cc.current.VolumeStep)
		cc.current.VolumeStep = defaultVolumeStep
	}

	cc.logger.Debug("Populated config fields from vipers")

	return nil
}

func (cc *ConfigManager) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cc.reloadConsumers {
		consumer <- true
	}
}
