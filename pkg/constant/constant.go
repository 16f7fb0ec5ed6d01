package constant

// ModelIDMetadataKey is the call metadata key pinning a request to a loaded model
const ModelIDMetadataKey = "mm-model-id"

// ModuleConfigFileName is the per-model descriptor inside a model directory
const ModuleConfigFileName = "config.yml"

// DataModelPackage is the proto package holding the task result records
const DataModelPackage = "caikit_data_model.hf_demo"

// LoadedModelsKey is the redis hash mirroring the runtime's loaded models (model id -> module id)
const LoadedModelsKey = "caikit:runtime:loaded_models"
